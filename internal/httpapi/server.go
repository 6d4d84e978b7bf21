// Package httpapi exposes the REST and websocket surface of the service.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tablemate/tablemate/internal/chat"
	"github.com/tablemate/tablemate/internal/connection"
	"github.com/tablemate/tablemate/internal/dinner"
	"github.com/tablemate/tablemate/internal/notification"
	"github.com/tablemate/tablemate/internal/user"
)

// UserService is the identity surface the handlers need.
type UserService interface {
	Register(ctx context.Context, p user.RegisterParams) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.User, string, error)
	VerifyToken(token string) (*user.Claims, error)
	ByID(ctx context.Context, id string) (*user.User, error)
	SetDeviceToken(ctx context.Context, id string, token *string) error
	SetPreferences(ctx context.Context, id string, pushEnabled, emailEnabled bool) error
	DeleteAccount(ctx context.Context, id string) error
}

// DinnerService is the dinner and booking surface.
type DinnerService interface {
	CreateDinner(ctx context.Context, p dinner.CreateDinnerParams) (*dinner.Dinner, error)
	DinnerByID(ctx context.Context, id string) (*dinner.Dinner, error)
	ListUpcoming(ctx context.Context, limit, offset int) ([]*dinner.Dinner, error)
	UpdateDinner(ctx context.Context, id string, p dinner.CreateDinnerParams) (*dinner.Dinner, error)
	CancelDinner(ctx context.Context, id string) error
	Book(ctx context.Context, dinnerID, userID string, notes *string) (*dinner.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID string) error
	BookingsForUser(ctx context.Context, userID string) ([]*dinner.Booking, error)
	RateBooking(ctx context.Context, bookingID, userID string, rating int) (*dinner.Booking, error)
	RatableBookings(ctx context.Context, userID string) ([]*dinner.RatableBooking, error)
}

// NotificationService is the read side plus the admin broadcast entry.
type NotificationService interface {
	Create(ctx context.Context, p notification.CreateParams) (*notification.Notification, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*notification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

// ConnectionService is the connection surface.
type ConnectionService interface {
	Request(ctx context.Context, senderID, receiverID, senderName string) (*connection.Connection, error)
	Accept(ctx context.Context, connectionID, userID, accepterName string) (*connection.Connection, error)
	Decline(ctx context.Context, connectionID, userID string) error
	ForUser(ctx context.Context, userID string) ([]*connection.Connection, error)
}

// ChatService is the chat surface.
type ChatService interface {
	ServeWS(w http.ResponseWriter, r *http.Request, dinnerID, userID string)
	History(ctx context.Context, dinnerID string, limit int) ([]*chat.Message, error)
}

// Server wires the handlers to the services and owns the router.
type Server struct {
	users         UserService
	dinners       DinnerService
	notifications NotificationService
	connections   ConnectionService
	chat          ChatService
	adminSecret   string
	adminKeyHash  string
	logger        *slog.Logger
}

type ServerParams struct {
	Users         UserService
	Dinners       DinnerService
	Notifications NotificationService
	Connections   ConnectionService
	Chat          ChatService
	AdminSecret   string
	AdminKeyHash  string
	Logger        *slog.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		users:         p.Users,
		dinners:       p.Dinners,
		notifications: p.Notifications,
		connections:   p.Connections,
		chat:          p.Chat,
		adminSecret:   p.AdminSecret,
		adminKeyHash:  p.AdminKeyHash,
		logger:        p.Logger,
	}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/users/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/users/me", s.handleDeleteMe).Methods(http.MethodDelete)
	authed.HandleFunc("/users/me/device-token", s.handleDeviceToken).Methods(http.MethodPut)
	authed.HandleFunc("/users/me/preferences", s.handlePreferences).Methods(http.MethodPut)

	authed.HandleFunc("/dinners", s.handleListDinners).Methods(http.MethodGet)
	authed.HandleFunc("/dinners/{id}", s.handleGetDinner).Methods(http.MethodGet)
	authed.HandleFunc("/dinners/{id}/book", s.handleBook).Methods(http.MethodPost)
	authed.HandleFunc("/dinners/{id}/chat", s.handleChatWS).Methods(http.MethodGet)
	authed.HandleFunc("/dinners/{id}/chat/history", s.handleChatHistory).Methods(http.MethodGet)
	authed.HandleFunc("/bookings", s.handleMyBookings).Methods(http.MethodGet)
	authed.HandleFunc("/bookings/ratable", s.handleRatableBookings).Methods(http.MethodGet)
	authed.HandleFunc("/bookings/{id}", s.handleCancelBooking).Methods(http.MethodDelete)
	authed.HandleFunc("/bookings/{id}/rating", s.handleRateBooking).Methods(http.MethodPost)

	authed.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/unread-count", s.handleUnreadCount).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/read-all", s.handleMarkAllRead).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id}", s.handleDeleteNotification).Methods(http.MethodDelete)

	authed.HandleFunc("/connections", s.handleListConnections).Methods(http.MethodGet)
	authed.HandleFunc("/connections", s.handleRequestConnection).Methods(http.MethodPost)
	authed.HandleFunc("/connections/{id}/accept", s.handleAcceptConnection).Methods(http.MethodPost)
	authed.HandleFunc("/connections/{id}/decline", s.handleDeclineConnection).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminKeyMiddleware)
	admin.HandleFunc("/dinners", s.handleCreateDinner).Methods(http.MethodPost)
	admin.HandleFunc("/dinners/{id}", s.handleUpdateDinner).Methods(http.MethodPut)
	admin.HandleFunc("/dinners/{id}", s.handleCancelDinner).Methods(http.MethodDelete)
	admin.HandleFunc("/broadcast", s.handleBroadcast).Methods(http.MethodPost)

	return otelhttp.NewHandler(r, "tablemate-api")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
