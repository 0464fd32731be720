package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loadboard/accounts"
	"loadboard/adapters/auth"
	"loadboard/adapters/ws"
	"loadboard/bidding"
	"loadboard/policy"
)

const principalKey = "principal"

// RegisterHandlers 將所有路由掛到 gin 上
func (s *Server) RegisterHandlers(r gin.IRouter) {
	r.GET("/healthz", s.getHealthz)
	r.GET("/ws", gin.WrapH(s.wsHandler))

	if s.config.Auth.InternalToken != "" {
		internal := r.Group("/internal", s.requireInternalToken)
		internal.POST("/registrations/:userID", s.postRegistration)
	}

	authed := r.Group("/", s.requirePrincipal)
	authed.POST("/bids/:bidID/accept", s.postAcceptBid)
	authed.POST("/bids/:bidID/withdraw", s.postWithdrawBid)
	authed.POST("/bids/:bidID/reject", s.postRejectBid)
	authed.PUT("/bids/:bidID", s.putBid)
	authed.POST("/loads/:loadID/bids", s.postPlaceBid)
	authed.PUT("/loads/:loadID/status", s.putLoadStatus)
	authed.POST("/messages", s.postMessage)
	authed.PUT("/messages/:messageID/read", s.putMessageRead)
	authed.PUT("/admin/users/:userID/status", s.putUserStatus)
	authed.POST("/admin/documents/:documentID/verification", s.postDocumentVerification)
}

// requirePrincipal 驗證 Bearer 令牌，角色與狀態以資料庫為準
func (s *Server) requirePrincipal(c *gin.Context) {
	token := ws.TokenFromRequest(c.Request)
	if token == "" {
		s.abortWithError(c, fmt.Errorf("missing bearer token: %w", auth.ErrUnauthenticated))
		return
	}
	p, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Set(principalKey, p)
	c.Next()
}

func (s *Server) requireInternalToken(c *gin.Context) {
	token := ws.TokenFromRequest(c.Request)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Auth.InternalToken)) != 1 {
		s.abortWithError(c, fmt.Errorf("invalid internal token: %w", auth.ErrUnauthenticated))
		return
	}
	c.Next()
}

func principalFrom(c *gin.Context) policy.Principal {
	p, _ := c.MustGet(principalKey).(policy.Principal)
	return p
}

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, invalidArgument(fmt.Errorf("%s is not a valid id", name))
	}
	return id, nil
}

// respond 在 worker 數量上限內執行 fn 並輸出結果
func (s *Server) respond(c *gin.Context, status int, fn func(ctx context.Context) (any, error)) {
	result, err := s.runCommand(c.Request.Context(), fn)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(status, result)
}

// (GET /healthz)
func (s *Server) getHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.registry.Count(),
	})
}

// (POST /bids/{bidID}/accept)
func (s *Server) postAcceptBid(c *gin.Context) {
	bidID, err := pathID(c, "bidID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		result, err := s.engine.AcceptBid(ctx, principalFrom(c), bidID)
		if err != nil {
			return nil, err
		}
		return newAcceptedView(result), nil
	})
}

// (POST /bids/{bidID}/withdraw)
func (s *Server) postWithdrawBid(c *gin.Context) {
	bidID, err := pathID(c, "bidID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		bid, err := s.engine.WithdrawBid(ctx, principalFrom(c), bidID)
		if err != nil {
			return nil, err
		}
		return newBidView(bid), nil
	})
}

// (POST /bids/{bidID}/reject)
func (s *Server) postRejectBid(c *gin.Context) {
	bidID, err := pathID(c, "bidID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		bid, err := s.engine.RejectBid(ctx, principalFrom(c), bidID)
		if err != nil {
			return nil, err
		}
		return newBidView(bid), nil
	})
}

// (PUT /bids/{bidID})
func (s *Server) putBid(c *gin.Context) {
	bidID, err := pathID(c, "bidID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req updateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		bid, err := s.engine.UpdateBid(ctx, principalFrom(c), bidID, bidding.UpdateBidInput{
			Amount: req.Amount,
			Note:   req.Note,
		})
		if err != nil {
			return nil, err
		}
		return newBidView(bid), nil
	})
}

// (POST /loads/{loadID}/bids)
func (s *Server) postPlaceBid(c *gin.Context) {
	loadID, err := pathID(c, "loadID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusCreated, func(ctx context.Context) (any, error) {
		bid, err := s.engine.PlaceBid(ctx, principalFrom(c), bidding.PlaceBidInput{
			LoadID:               loadID,
			Amount:               req.Amount,
			ProposedPickupDate:   req.ProposedPickupDate,
			ProposedDeliveryDate: req.ProposedDeliveryDate,
			Note:                 req.Note,
		})
		if err != nil {
			return nil, err
		}
		return newBidView(bid), nil
	})
}

// (PUT /loads/{loadID}/status)
func (s *Server) putLoadStatus(c *gin.Context) {
	loadID, err := pathID(c, "loadID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req loadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		load, err := s.engine.ChangeLoadStatus(ctx, principalFrom(c), loadID, req.Status)
		if err != nil {
			return nil, err
		}
		return newLoadView(load), nil
	})
}

// (POST /messages)
func (s *Server) postMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusCreated, func(ctx context.Context) (any, error) {
		return s.sendMessage(ctx, principalFrom(c), req)
	})
}

// (PUT /messages/{messageID}/read)
func (s *Server) putMessageRead(c *gin.Context) {
	messageID, err := pathID(c, "messageID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		msg, err := s.messages.MarkRead(ctx, principalFrom(c), messageID)
		if err != nil {
			return nil, err
		}
		return newMessageView(msg), nil
	})
}

// (PUT /admin/users/{userID}/status)
func (s *Server) putUserStatus(c *gin.Context) {
	userID, err := pathID(c, "userID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		user, err := s.accounts.ChangeStatus(ctx, principalFrom(c), userID, req.Status)
		if err != nil {
			return nil, err
		}
		return userView{ID: user.ID, Role: user.Role, Status: user.Status}, nil
	})
}

// (POST /admin/documents/{documentID}/verification)
func (s *Server) postDocumentVerification(c *gin.Context) {
	documentID, err := pathID(c, "documentID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req documentVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, invalidArgument(err))
		return
	}
	s.respond(c, http.StatusAccepted, func(ctx context.Context) (any, error) {
		err := s.accounts.VerifyDocument(ctx, principalFrom(c), accounts.VerifyDocumentInput{
			DocumentID: documentID,
			OwnerID:    uuid.MustParse(req.OwnerID),
			Status:     accounts.DocumentStatus(req.Status),
			Reason:     req.Reason,
		})
		if err != nil {
			return nil, err
		}
		return gin.H{"document_id": documentID, "status": req.Status}, nil
	})
}

// (POST /internal/registrations/{userID})
func (s *Server) postRegistration(c *gin.Context) {
	userID, err := pathID(c, "userID")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.respond(c, http.StatusAccepted, func(ctx context.Context) (any, error) {
		if err := s.accounts.AnnounceRegistration(ctx, userID); err != nil {
			return nil, err
		}
		return gin.H{"user_id": userID}, nil
	})
}
