package api

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"newsnotify/internal/alerts"
	"newsnotify/internal/changefeed"
	"newsnotify/internal/config"
	"newsnotify/internal/crawler"
	"newsnotify/internal/notify"
)

type Server struct {
	crawler   *crawler.Crawler
	worker    *notify.Worker
	relay     *alerts.Relay
	notifiers map[string]config.Notifier
	log       zerolog.Logger
}

func NewServer(c *crawler.Crawler, w *notify.Worker, r *alerts.Relay, notifiers map[string]config.Notifier, log zerolog.Logger) *Server {
	return &Server{
		crawler:   c,
		worker:    w,
		relay:     r,
		notifiers: notifiers,
		log:       log,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/poll", s.poll)
		v1.POST("/dispatch", s.dispatch)
		v1.POST("/logrelay", s.logRelay)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type pollRequest struct {
	Notifier string `json:"notifier"`
}

// poll 1 巡回を即時実行する。notifier 指定なしなら全件
func (s *Server) poll(c *gin.Context) {
	var req pollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": err.Error(),
			})
			return
		}
	}

	targets := s.notifiers
	if req.Notifier != "" {
		n, ok := s.notifiers[req.Notifier]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "not_found",
				"message": "unknown notifier: " + req.Notifier,
			})
			return
		}
		targets = map[string]config.Notifier{req.Notifier: n}
	}

	stats, err := s.crawler.PollAll(c.Request.Context(), targets)
	if err != nil {
		s.log.Error().Err(err).Msg("poll failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    stats,
	})
}

type dispatchRequest struct {
	Records []changefeed.Record `json:"records"`
}

// dispatch 変更レコードを直接投入して通知を流す。再配送用
func (s *Server) dispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": err.Error(),
		})
		return
	}

	stats := s.worker.ProcessBatch(c.Request.Context(), req.Records)

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    stats,
	})
}

// logRelay エラーログのバッチを受けてアラートトピックへ転送する。
// 転送元が gzip で送ってくるため Content-Encoding を見て展開する
func (s *Server) logRelay(c *gin.Context) {
	body := io.Reader(c.Request.Body)
	if c.GetHeader("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": "invalid gzip body",
			})
			return
		}
		defer gz.Close()
		body = gz
	}

	var batch alerts.LogBatch
	if err := decodeJSON(body, &batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": err.Error(),
		})
		return
	}

	published, err := s.relay.Process(c.Request.Context(), batch)
	if err != nil {
		s.log.Error().Err(err).Msg("log relay failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    gin.H{"published": published},
	})
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
