package routers

import (
	"github.com/ancourn/kaldr1-sub003/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the ledger
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Submits a signed transaction into the DAG
	r.HandleFunc("/transactions", h.SubmitTransaction).Methods("POST")

	// Proposes parent ids from the current tip frontier
	r.HandleFunc("/transactions/select-parents", h.SelectParents).Methods("GET")

	// Retrieves a transaction by its id
	r.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")

	// Aggregated node status: ledger size, peers, consensus height, resistance
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
}
