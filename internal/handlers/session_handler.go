package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"dairy-billing/internal/logging"
	"dairy-billing/internal/models"
	"dairy-billing/internal/services"
	"dairy-billing/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionHandler starts send sessions and exposes their control and progress.
type SessionHandler struct {
	Service *services.SendService
	log     *zap.Logger
}

func NewSessionHandler(s *services.SendService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{Service: s, log: logging.OrNop(logger).Named("sessions")}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	var req models.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.Service.Start(r.Context(), p, req)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusAccepted, sess.Progress())
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, h.Service.Sessions())
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.SendSession, bool) {
	sess, err := h.Service.Session(mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, err)
		return nil, false
	}
	return sess, true
}

type sessionDetail struct {
	models.SessionProgress
	Log    []models.MessageLog `json:"log"`
	Result *models.SendStatus  `json:"result,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	result, _ := sess.Result()
	utils.JSON(w, http.StatusOK, sessionDetail{SessionProgress: sess.Progress(), Log: sess.Log(), Result: result})
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Pause()
	utils.JSON(w, http.StatusOK, sess.Progress())
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Resume()
	utils.JSON(w, http.StatusOK, sess.Progress())
}

// Cancel returns immediately; the worker stops after the current customer.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Cancel()
	utils.JSON(w, http.StatusAccepted, sess.Progress())
}

// Finalize retries saving results after a failed save (e.g. the status file was open in a spreadsheet program).
func (h *SessionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Service.Refinalize(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, sess.Progress())
}

// Stream pushes progress over a websocket until the session ends.
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case p, more := <-updates:
			if !more {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(sess.Progress().State)),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}

// SendStatus lists the month's persisted sent and unsent customers.
func (h *SessionHandler) SendStatus(w http.ResponseWriter, r *http.Request) {
	p, err := periodVar(r)
	if err != nil {
		utils.Error(w, err)
		return
	}
	st, err := h.Service.SendStatus(r.Context(), p)
	if err != nil {
		utils.Error(w, err)
		return
	}
	if st.Sent == nil {
		st.Sent = []models.SentRecord{}
	}
	if st.Unsent == nil {
		st.Unsent = []models.UnsentRecord{}
	}
	utils.JSON(w, http.StatusOK, st)
}
