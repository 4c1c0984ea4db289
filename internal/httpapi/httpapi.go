// Package httpapi is the HTTP surface: a gin router that translates
// incoming request bodies into internal/engine and internal/ethrelay calls,
// and engine error kinds into HTTP status codes.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/partyone/tss-signer/internal/authguard"
	"github.com/partyone/tss-signer/internal/engine"
	"github.com/partyone/tss-signer/internal/engineerr"
	"github.com/partyone/tss-signer/internal/ethrelay"
	"github.com/partyone/tss-signer/internal/mpcparty1"
)

// Server bundles the engine and relay collaborators the router dispatches
// to.
type Server struct {
	engine *engine.Engine
	relay  *ethrelay.Relay
	log    *zap.Logger
}

func New(e *engine.Engine, relay *ethrelay.Relay, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: e, relay: relay, log: log}
}

// Router builds the gin engine exposing the protocol and relay endpoints,
// gated by authguard.Middleware on every route except the public /ping.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.GET("/ping", s.ping)

	authed := r.Group("/", authguard.Middleware())
	ecdsa := authed.Group("/ecdsa")
	ecdsa.POST("/keygen/first", s.keygenFirst)
	ecdsa.POST("/keygen/:sid/second", s.keygenSecond)
	ecdsa.POST("/keygen/:sid/chaincode/first", s.chainCodeFirst)
	ecdsa.POST("/keygen/:sid/chaincode/second", s.chainCodeSecond)
	ecdsa.POST("/sign/:sid/first", s.signFirst)
	ecdsa.POST("/sign/:sid/second", s.signSecond)
	ecdsa.POST("/rotate/:sid/first", s.rotateFirst)
	ecdsa.POST("/rotate/:sid/second", s.rotateSecond)
	ecdsa.POST("/:sid/recover", s.recover)

	eth := authed.Group("/eth")
	eth.POST("/tx/params", s.ethParams)
	eth.POST("/tx/send", s.ethSend)

	return r
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeErr maps an *engineerr.Error to its status code and a short
// diagnostic body.
func (s *Server) writeErr(c *gin.Context, eerr *engineerr.Error) {
	s.log.Warn("transition failed",
		zap.String("kind", eerr.Kind.String()),
		zap.String("path", c.FullPath()),
		zap.Error(eerr),
	)
	c.JSON(eerr.StatusCode(), gin.H{"error": eerr.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// ---- ecdsa/keygen ---------------------------------------------------------

func (s *Server) keygenFirst(c *gin.Context) {
	id := authguard.FromContext(c)
	sid, msg, eerr := s.engine.KeygenFirst(c.Request.Context(), id.UserID, id.Token)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, []any{sid, msg})
}

func (s *Server) keygenSecond(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	var body mpcparty1.Party2KeyGenMsg
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed DLogProof body")
		return
	}

	resp, eerr := s.engine.KeygenSecond(c.Request.Context(), id.UserID, sid, &body)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) chainCodeFirst(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	resp, eerr := s.engine.ChainCodeFirst(c.Request.Context(), id.UserID, sid)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) chainCodeSecond(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	var body mpcparty1.Party2ChainCodeMsg
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed chain-code DLogProof body")
		return
	}

	resp, eerr := s.engine.ChainCodeSecond(c.Request.Context(), id.UserID, sid, id.Token, &body)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ---- ecdsa/sign ------------------------------------------------------------

func (s *Server) signFirst(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	var body mpcparty1.EphKeyGenFirstMsg
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed EphKeyGenFirstMsg body")
		return
	}

	resp, eerr := s.engine.SignFirst(c.Request.Context(), id.UserID, sid, id.Token, &body)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) signSecond(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	var body engine.SignSecondRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed SignSecondMsgRequest body")
		return
	}
	if body.Message == nil || body.XPosChildKey == nil || body.YPosChildKey == nil {
		badRequest(c, "message, x_pos_child_key, and y_pos_child_key are required")
		return
	}

	resp, eerr := s.engine.SignSecond(c.Request.Context(), id.UserID, sid, id.Token, body)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ---- ecdsa/rotate -----------------------------------------------------------

func (s *Server) rotateFirst(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	resp, eerr := s.engine.RotateFirst(c.Request.Context(), id.UserID, sid, id.Token)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) rotateSecond(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	var body mpcparty1.Party2CoinFlip1stMsg
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "malformed CoinFlipParty2FirstMsg body")
		return
	}

	coinFlip, rotation, eerr := s.engine.RotateSecond(c.Request.Context(), id.UserID, sid, id.Token, &body)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, []any{coinFlip, rotation})
}

// ---- recover ----------------------------------------------------------------

func (s *Server) recover(c *gin.Context) {
	id := authguard.FromContext(c)
	sid := c.Param("sid")

	pos, eerr := s.engine.Recover(c.Request.Context(), id.UserID, sid, id.Token)
	if eerr != nil {
		s.writeErr(c, eerr)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// ---- eth --------------------------------------------------------------------

func (s *Server) ethParams(c *gin.Context) {
	var req ethrelay.ParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed tx params request")
		return
	}

	resp, err := s.relay.Params(c.Request.Context(), req)
	if err != nil {
		s.log.Warn("eth tx params failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type sendTxRequest struct {
	RawTx []byte `json:"raw_tx"`
}

func (s *Server) ethSend(c *gin.Context) {
	var req sendTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed raw tx request")
		return
	}

	resp, err := s.relay.Send(c.Request.Context(), req.RawTx)
	if err != nil {
		s.log.Warn("eth tx send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
