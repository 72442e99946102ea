package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/profile"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/queue"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/quiz"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/telemetry"
)

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus
	Profile  *profile.Service
	Queue    *queue.Service
	Quiz     *quiz.Service
	// Redis publishes user notifications. Notifications are off when nil.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ps *profile.Service
	qs *queue.Service
	zs *quiz.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ps:     c.Profile,
		qs:     c.Queue,
		zs:     c.Quiz,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	r := c.Router
	r.GET("/", a.Health)
	r.GET("/get-profile", a.GetProfile)
	r.POST("/add-xp", a.AddXP)
	r.POST("/join-queue", a.JoinQueue)
	r.GET("/queue-status", a.QueueStatus)
	r.POST("/complete-session", a.CompleteSession)
	r.POST("/complete-quest", a.CompleteQuest)
	r.GET("/get-activity", a.GetActivity)
	r.POST("/complete-level", a.CompleteLevel)
	r.POST("/lose-life", a.LoseLife)

	if a.redis != nil {
		a.subscribeNotifications(c.EventBus)
	}

	return a
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Online"})
}

type ProfileResponse struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
	Lives int `json:"lives"`
}

func (a *API) GetProfile(c *gin.Context) {
	p, err := a.ps.GetProfile(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{Level: p.Level, XP: p.XP, Lives: p.Lives})
}

type XPRequest struct {
	UserID   string `json:"user_id"`
	XPAmount int    `json:"xp_amount"`
}

type XPResponse struct {
	Success   bool `json:"success"`
	NewLevel  int  `json:"new_level"`
	CurrentXP int  `json:"current_xp"`
	LeveledUp bool `json:"leveled_up"`
}

func newXPResponse(res *domain.XPResult) XPResponse {
	return XPResponse{
		Success:   true,
		NewLevel:  res.NewLevel,
		CurrentXP: res.NewXP,
		LeveledUp: res.LeveledUp,
	}
}

func (a *API) AddXP(c *gin.Context) {
	var req XPRequest
	if !a.bind(c, &req) {
		return
	}

	res, err := a.ps.AddXP(c.Request.Context(), profile.AddXPRequest{UserID: req.UserID, Amount: req.XPAmount})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newXPResponse(res))
}

func (a *API) CompleteQuest(c *gin.Context) {
	var req XPRequest
	if !a.bind(c, &req) {
		return
	}

	res, err := a.ps.CompleteQuest(c.Request.Context(), profile.CompleteQuestRequest{UserID: req.UserID, Amount: req.XPAmount})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newXPResponse(res))
}

type CompleteSessionRequest struct {
	UserID  string `json:"user_id"`
	Minutes int    `json:"minutes"`
}

type CompleteSessionResponse struct {
	XPResponse
	XPEarned int `json:"xp_earned"`
}

func (a *API) CompleteSession(c *gin.Context) {
	var req CompleteSessionRequest
	if !a.bind(c, &req) {
		return
	}

	res, err := a.ps.CompleteSession(c.Request.Context(), profile.CompleteSessionRequest{UserID: req.UserID, Minutes: req.Minutes})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, CompleteSessionResponse{
		XPResponse: newXPResponse(&res.XPResult),
		XPEarned:   res.XPEarned,
	})
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type JoinQueueResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (a *API) JoinQueue(c *gin.Context) {
	var req UserRequest
	if !a.bind(c, &req) {
		return
	}

	res, err := a.qs.Join(c.Request.Context(), req.UserID)
	if err != nil {
		a.abort(c, err)
		return
	}

	resp := JoinQueueResponse{Success: true}
	if res.AlreadyQueued {
		resp.Message = "already queued"
	}

	c.JSON(http.StatusOK, resp)
}

type QueueStatusResponse struct {
	InQueue  bool `json:"in_queue"`
	Position int  `json:"position,omitempty"`
	Total    int  `json:"total,omitempty"`
}

func (a *API) QueueStatus(c *gin.Context) {
	st, err := a.qs.Status(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		a.abort(c, err)
		return
	}

	if !st.InQueue {
		c.JSON(http.StatusOK, QueueStatusResponse{})
		return
	}

	c.JSON(http.StatusOK, QueueStatusResponse{InQueue: true, Position: st.Position, Total: st.Total})
}

type ActivityQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"t"`
	Options []string `json:"o"`
	Correct int      `json:"c"`
}

type ActivityResponse struct {
	Success   bool               `json:"success"`
	Questions []ActivityQuestion `json:"questions,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (a *API) GetActivity(c *gin.Context) {
	acts, err := a.zs.GetActivity(c.Request.Context(), quiz.GetActivityRequest{
		UserID:     c.Query("user_id"),
		Difficulty: c.Query("difficulty"),
	})
	if stderrors.Is(err, quiz.ErrNoNewQuestions) {
		c.JSON(http.StatusOK, ActivityResponse{Error: quiz.ErrNoNewQuestions.Message})
		return
	}
	if err != nil {
		a.abort(c, err)
		return
	}

	resp := ActivityResponse{
		Success:   true,
		Questions: make([]ActivityQuestion, 0, len(acts)),
	}
	for _, q := range acts {
		resp.Questions = append(resp.Questions, ActivityQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Options: q.Options,
			Correct: q.CorrectIndex,
		})
	}

	c.JSON(http.StatusOK, resp)
}

type CompleteLevelRequest struct {
	UserID       string   `json:"user_id"`
	XPReward     *int     `json:"xp_reward"`
	QuestionsIDs []string `json:"questions_ids"`
}

type CompleteLevelResponse struct {
	Success   bool `json:"success"`
	NewLevel  int  `json:"new_level"`
	CurrentXP int  `json:"current_xp"`
}

func (a *API) CompleteLevel(c *gin.Context) {
	var req CompleteLevelRequest
	if !a.bind(c, &req) {
		return
	}

	p, err := a.ps.CompleteLevel(c.Request.Context(), profile.CompleteLevelRequest{
		UserID:      req.UserID,
		XPReward:    req.XPReward,
		QuestionIDs: req.QuestionsIDs,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, CompleteLevelResponse{Success: true, NewLevel: p.Level, CurrentXP: p.XP})
}

type LoseLifeResponse struct {
	Success bool `json:"success"`
	Lives   int  `json:"lives"`
}

func (a *API) LoseLife(c *gin.Context) {
	var req UserRequest
	if !a.bind(c, &req) {
		return
	}

	p, err := a.ps.LoseLife(c.Request.Context(), req.UserID)
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, LoseLifeResponse{Success: true, Lives: p.Lives})
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		a.abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err),
		))
		return false
	}
	return true
}

// abort writes err as {error: message}. Causes are logged, never sent to the client.
func (a *API) abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	status := e.HTTPStatusCode()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"request_id", telemetry.RequestID(c),
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: e.Message})
}
