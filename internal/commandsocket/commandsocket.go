// Package commandsocket implements the operator command surface of
// spec.md §6.3 over a unix-domain socket, grounded on
// tdns/apirouters.go's gorilla/mux router construction and
// tdns/apihandler_funcs.go's command/subcommand JSON dispatch — adapted
// from HTTPS-over-TCP (ListenAndServeTLS against conf.ApiServer.Addresses)
// to plain HTTP over a single AF_UNIX listener, since the core only ever
// has one local operator, not a fleet of remote API clients.
package commandsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/opendnssec/opendnssec-sub014/internal/enforcer"
	"github.com/opendnssec/opendnssec-sub014/internal/keystore"
	"github.com/opendnssec/opendnssec-sub014/internal/schedule"
	"github.com/opendnssec/opendnssec-sub014/internal/signer"
	"github.com/opendnssec/opendnssec-sub014/internal/storage"
)

// unknownSubcommand builds the error every handler's default case
// returns for an unrecognized command/subcommand value.
func unknownSubcommand(got string) error {
	return fmt.Errorf("unknown command %q", got)
}

// Server binds the collaborators every operator command needs. commandPost
// handlers touch storage.Store and internal/enforcer's operator.go entry
// points directly; they never reach into task callbacks.
type Server struct {
	Store    storage.Store
	Enforcer *enforcer.Enforcer
	Schedule *schedule.Schedule
	Keystore keystore.Keystore
	Signer   *signer.Driver

	Path     string
	listener net.Listener
	srv      *http.Server
}

// Response is the envelope every command handler returns, mirroring
// tdns's CommandResponse/KeystoreResponse shape (Time/Error/ErrorMsg plus
// a command-specific payload) but carrying a request id for operator-side
// log correlation instead of a wall-clock timestamp (the daemon's own log
// line already carries one).
type Response struct {
	RequestID string      `json:"request_id"`
	Error     bool        `json:"error"`
	ErrorMsg  string      `json:"error_msg,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func writeResponse(w http.ResponseWriter, reqID string, data interface{}, err error) {
	resp := Response{RequestID: reqID, Data: data}
	if err != nil {
		resp.Error = true
		resp.ErrorMsg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("commandsocket: encoding response %s: %v", reqID, err)
	}
}

// decode reads a JSON request body into v and returns a fresh request id
// (google/uuid, spec.md domain stack) used in log lines the way
// tdns.APIcommand logs r.RemoteAddr for correlation — a unix socket has no
// useful RemoteAddr, so a generated id stands in.
func decode(r *http.Request, v interface{}) string {
	reqID := uuid.NewString()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("commandsocket: %s: decoding request: %v", reqID, err)
	}
	return reqID
}

// NewRouter builds the command surface's mux.Router, one subrouter path
// per noun (spec.md §6.3), mirroring tdns.SetupAPIRouter's
// PathPrefix/Subrouter layering minus the X-API-Key header match (a unix
// socket's filesystem permissions are the access control here).
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter().StrictSlash(true)
	sr := r.PathPrefix("/v1").Subrouter()

	sr.HandleFunc("/queue", s.handleQueue).Methods("POST")
	sr.HandleFunc("/flush", s.handleFlush).Methods("POST")
	sr.HandleFunc("/zone", s.handleZone).Methods("POST")
	sr.HandleFunc("/policy", s.handlePolicy).Methods("POST")
	sr.HandleFunc("/key", s.handleKey).Methods("POST")
	sr.HandleFunc("/backup", s.handleBackup).Methods("POST")
	sr.HandleFunc("/update", s.handleUpdate).Methods("POST")

	return r
}

// WalkRoutes logs every registered route at startup, mirroring
// tdns.WalkRoutes.
func WalkRoutes(router *mux.Router) {
	walker := func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		path, _ := route.GetPathTemplate()
		methods, _ := route.GetMethods()
		for _, m := range methods {
			log.Printf("commandsocket: %-6s %s", m, path)
		}
		return nil
	}
	if err := router.Walk(walker); err != nil {
		log.Printf("commandsocket: WalkRoutes: %v", err)
	}
}

// ListenAndServe binds the unix-domain socket at s.Path (removing a
// stale socket file left by an unclean shutdown, the usual AF_UNIX
// idiom) and serves the command router until done closes, mirroring
// tdns.APIdispatcher's per-server goroutine plus graceful-shutdown
// pattern but with a single net.Listener instead of one per configured
// TCP address.
func (s *Server) ListenAndServe(done <-chan struct{}) error {
	if err := os.RemoveAll(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	ln, err := net.Listen("unix", s.Path)
	if err != nil {
		return err
	}
	s.listener = ln

	router := s.NewRouter()
	WalkRoutes(router)
	s.srv = &http.Server{Handler: router}

	go func() {
		log.Printf("commandsocket: listening on %s", s.Path)
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("commandsocket: Serve: %v", err)
		}
	}()

	go func() {
		<-done
		log.Println("commandsocket: shutting down")
		if err := s.srv.Shutdown(context.Background()); err != nil {
			log.Printf("commandsocket: Shutdown: %v", err)
		}
		os.RemoveAll(s.Path)
	}()

	return nil
}
