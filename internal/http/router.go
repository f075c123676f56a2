package http

import (
	"net/http"

	"dairy-billing/internal/handlers"
	"dairy-billing/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Customer *handlers.CustomerHandler
	Ledger   *handlers.LedgerHandler
	Report   *handlers.ReportHandler
	Session  *handlers.SessionHandler
	Settings *handlers.SettingsHandler
	Backup   *handlers.BackupHandler
	Health   *handlers.HealthHandler
}

func NewRouter(hs Handlers, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery(logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.APILogging(logger))

	// Health and metrics
	r.HandleFunc("/health", hs.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", hs.Health.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", hs.Health.DetailedHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Customers
	api.HandleFunc("/customers", hs.Customer.ListCustomers).Methods("GET")
	api.HandleFunc("/customers", hs.Customer.CreateCustomer).Methods("POST")
	api.HandleFunc("/customers/next-id", hs.Customer.NextID).Methods("GET")
	api.HandleFunc("/customers/export", hs.Report.RosterCSV).Methods("GET")
	api.HandleFunc("/customers/delete", hs.Customer.DeleteCustomers).Methods("POST")
	api.HandleFunc("/customers/undo", hs.Customer.Undo).Methods("POST")
	api.HandleFunc("/customers/{id}", hs.Customer.GetCustomer).Methods("GET")
	api.HandleFunc("/customers/{id}", hs.Customer.UpdateCustomer).Methods("PUT")
	api.HandleFunc("/customers/{id}", hs.Customer.DeleteCustomer).Methods("DELETE")
	api.HandleFunc("/customers/{id}/totals", hs.Customer.Totals).Methods("GET")

	// Ledgers
	api.HandleFunc("/ledgers", hs.Ledger.ListPeriods).Methods("GET")
	api.HandleFunc("/ledgers/{period}", hs.Ledger.GetLedger).Methods("GET")
	api.HandleFunc("/ledgers/{period}", hs.Ledger.CreateLedger).Methods("POST")
	api.HandleFunc("/ledgers/{period}/sync", hs.Ledger.Sync).Methods("POST")
	api.HandleFunc("/ledgers/{period}/customers/{id}", hs.Ledger.CustomerTotals).Methods("GET")
	api.HandleFunc("/ledgers/{period}/customers/{id}", hs.Ledger.SetQuantity).Methods("PUT")

	// Reports
	api.HandleFunc("/reports/monthly/{period}", hs.Report.Monthly).Methods("GET")
	api.HandleFunc("/reports/monthly/{period}/summary", hs.Report.MonthSummary).Methods("GET")
	api.HandleFunc("/reports/yearly/{year:[0-9]{4}}", hs.Report.Yearly).Methods("GET")
	api.HandleFunc("/reports/all", hs.Report.AllRecords).Methods("GET")
	api.HandleFunc("/reports/bills/{period}", hs.Report.BillZip).Methods("GET")
	api.HandleFunc("/reports/bills/{period}/{id}", hs.Report.BillPDF).Methods("GET")

	// Sending
	api.HandleFunc("/status/{period}", hs.Session.SendStatus).Methods("GET")
	api.HandleFunc("/sessions", hs.Session.List).Methods("GET")
	api.HandleFunc("/sessions/{period:[0-9]{4}[-_][0-9]{2}}", hs.Session.Start).Methods("POST")
	api.HandleFunc("/sessions/{id}", hs.Session.Get).Methods("GET")
	api.HandleFunc("/sessions/{id}/pause", hs.Session.Pause).Methods("POST")
	api.HandleFunc("/sessions/{id}/resume", hs.Session.Resume).Methods("POST")
	api.HandleFunc("/sessions/{id}/cancel", hs.Session.Cancel).Methods("POST")
	api.HandleFunc("/sessions/{id}/finalize", hs.Session.Finalize).Methods("POST")
	api.HandleFunc("/sessions/{id}/ws", hs.Session.Stream).Methods("GET")

	// Settings and backup
	api.HandleFunc("/settings/profile", hs.Settings.GetProfile).Methods("GET")
	api.HandleFunc("/settings/profile", hs.Settings.UpdateProfile).Methods("PUT")
	api.HandleFunc("/settings/profile/preview", hs.Settings.Preview).Methods("GET")
	api.HandleFunc("/backup", hs.Backup.Status).Methods("GET")
	api.HandleFunc("/backup", hs.Backup.Run).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})
	return r
}
