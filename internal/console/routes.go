package console

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/dmapctl/internal/creation"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/danmuck/dmapctl/internal/view"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GateState is the JSON form of a gate snapshot.
type GateState struct {
	Session     string            `json:"session"`
	Protocol    string            `json:"protocol"`
	Phase       string            `json:"phase"`
	ID          string            `json:"id,omitempty"`
	FailedOp    string            `json:"failed_op,omitempty"`
	Error       string            `json:"error,omitempty"`
	Draft       map[string]string `json:"draft,omitempty"`
	Submitted   int               `json:"submitted"`
	InFlight    bool              `json:"in_flight"`
	CanGenerate bool              `json:"can_generate"`
	CanSubmit   bool              `json:"can_submit"`
}

func gateState(id string, snap creation.Snapshot) GateState {
	out := GateState{
		Session:     id,
		Protocol:    string(snap.Protocol),
		Phase:       snap.Phase.String(),
		ID:          snap.ID,
		FailedOp:    snap.FailedOp,
		Submitted:   snap.Submitted,
		InFlight:    snap.InFlight,
		CanGenerate: snap.CanGenerate(),
		CanSubmit:   snap.CanSubmit(),
	}
	if snap.Err != nil {
		out.Error = snap.Err.Error()
	}
	if snap.Draft != nil {
		out.Draft = record.Values(snap.Draft)
	}
	return out
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		records := s.dispatcher.Records()
		stats := records.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.cfg.ID,
			"sessions":  len(s.Sessions()),
			"cache": gin.H{
				"keys":      records.Keys(),
				"fetches":   stats.Fetches,
				"coalesced": stats.Coalesced,
				"discarded": stats.Discarded,
			},
		})
	})

	if s.cfg.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.router.GET("/dmap", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.dispatcher.Navigation())
	})

	s.router.GET("/dmap/:id", func(c *gin.Context) {
		respondPlan(c, s.dispatcher.Resolve(c.Param("id"), string(view.SegmentInfo)))
	})

	s.router.GET("/dmap/:id/dnodes", func(c *gin.Context) {
		key := c.Param("id")
		if desc, err := protocol.Lookup(key); err == nil && flag(c, "refresh") {
			s.dispatcher.Refresh(desc.Key)
		}
		if flag(c, "wait") {
			ctx, cancel := s.waitContext(c)
			defer cancel()
			plan, _ := s.dispatcher.ResolveWait(ctx, key, string(view.SegmentList))
			respondPlan(c, plan)
			return
		}
		respondPlan(c, s.dispatcher.Resolve(key, string(view.SegmentList)))
	})

	s.router.POST("/dmap/:id/newdnode", func(c *gin.Context) {
		key := c.Param("id")
		plan := s.dispatcher.Resolve(key, string(view.SegmentCreate))
		if plan.Kind != view.PlanCreate {
			respondPlan(c, plan)
			return
		}
		sess, err := s.open(key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session": sess.id,
			"plan":    sess.mount.Plan,
			"state":   gateState(sess.id, sess.mount.Gate.Snapshot()),
		})
	})

	s.router.GET("/dmap/:id/newdnode/:session", func(c *gin.Context) {
		sess, ok := s.sessionOr404(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"plan":  sess.mount.Plan,
			"state": gateState(sess.id, sess.mount.Gate.Snapshot()),
		})
	})

	s.router.POST("/dmap/:id/newdnode/:session/allocate", func(c *gin.Context) {
		sess, ok := s.sessionOr404(c)
		if !ok {
			return
		}
		if err := sess.mount.Gate.Generate(); err != nil {
			respondGateError(c, sess, err)
			return
		}
		s.respondAfterAction(c, sess)
	})

	s.router.POST("/dmap/:id/newdnode/:session/submit", func(c *gin.Context) {
		sess, ok := s.sessionOr404(c)
		if !ok {
			return
		}
		var values map[string]string
		if err := c.ShouldBindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := record.Build(sess.mount.Gate.Protocol(), values)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"state": gateState(sess.id, sess.mount.Gate.Snapshot()),
			})
			return
		}
		if err := sess.mount.Gate.Submit(rec); err != nil {
			respondGateError(c, sess, err)
			return
		}
		s.respondAfterAction(c, sess)
	})

	s.router.DELETE("/dmap/:id/newdnode/:session", func(c *gin.Context) {
		if err := s.close(c.Param("id"), c.Param("session")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	})
}

func (s *Server) sessionOr404(c *gin.Context) (*session, bool) {
	sess, err := s.lookup(c.Param("id"), c.Param("session"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return sess, true
}

func (s *Server) respondAfterAction(c *gin.Context, sess *session) {
	if !flag(c, "wait") {
		c.JSON(http.StatusAccepted, gin.H{"state": gateState(sess.id, sess.mount.Gate.Snapshot())})
		return
	}
	ctx, cancel := s.waitContext(c)
	defer cancel()
	snap, err := sess.mount.Gate.Wait(ctx)
	status := http.StatusOK
	if err != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"state": gateState(sess.id, snap)})
}

func (s *Server) waitContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.WaitTimeout)
}

func respondGateError(c *gin.Context, sess *session, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, creation.ErrRejected):
		status = http.StatusConflict
	case errors.Is(err, creation.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, creation.ErrInvalidDraft):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"state": gateState(sess.id, sess.mount.Gate.Snapshot()),
	})
}

func respondPlan(c *gin.Context, plan view.RenderPlan) {
	if plan.Kind == view.PlanNotFound {
		c.JSON(http.StatusNotFound, plan)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func flag(c *gin.Context, name string) bool {
	switch c.Query(name) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
