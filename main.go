// Authorization decision service: a model-driven ACL/RBAC/ABAC enforcement
// engine exposed over HTTP, with SQLite-backed policy persistence.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	adapter "github.com/asakaida/authrus/internal/adapters/driven/persistence/sqlite"
	"github.com/asakaida/authrus/internal/core/domain"
	"github.com/asakaida/authrus/internal/core/ports/driving"
	"github.com/asakaida/authrus/internal/core/services"
)

// AuthService wires the authorization service port to the HTTP layer.
type AuthService struct {
	service driving.AuthorizationService
}

// defaultModel is a domain-aware RBAC model with glob object matching: a
// request (sub, dom, obj, act) is allowed when the subject holds the
// policy's role in the request domain, the object and action match, and no
// matching rule denies.
func defaultModel() domain.Model {
	m := domain.NewModel()
	m.AddDef(domain.SectionRequest, "r", "sub, dom, obj, act")
	m.AddDef(domain.SectionPolicy, "p", "sub, dom, obj, act, eft")
	m.AddDef(domain.SectionRole, "g", "_, _, _")
	m.AddDef(domain.SectionEffect, "e", "some(where (p.eft == allow)) && !some(where (p.eft == deny))")
	m.AddDef(domain.SectionMatcher, "m",
		"g(r.sub, p.sub, r.dom) && r.dom == p.dom && globMatch(r.obj, p.obj) && r.act == p.act")
	return m
}

// NewAuthService opens the database, builds the policy adapter and
// constructs the enforcer with caching and auto-save enabled.
func NewAuthService(dbPath string, cacheSize int) (*AuthService, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	a, err := adapter.NewPolicyAdapter(db)
	if err != nil {
		return nil, err
	}
	enforcer, err := services.NewEnforcer(defaultModel(),
		services.WithAdapter(a),
		services.WithAutoSave(),
		services.WithCache(cacheSize),
	)
	if err != nil {
		return nil, err
	}
	return &AuthService{service: services.NewAuthorizationService(enforcer)}, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// enforceHandler decides one authorization request.
func (s *AuthService) enforceHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.EnforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	allowed, err := s.service.Enforce(req.Values...)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.EnforceResponse{Message: err.Error()})
		return
	}
	status := http.StatusOK
	if !allowed {
		status = http.StatusForbidden
	}
	writeJSON(w, status, domain.EnforceResponse{Allowed: allowed})
}

func (s *AuthService) addPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	added, err := s.service.AddPolicy(req.Key, req.Rule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !added {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "policy already exists"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"added": true, "rule": req.Rule})
}

func (s *AuthService) deletePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	removed, err := s.service.RemovePolicy(req.Key, req.Rule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "policy not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": true, "rule": req.Rule})
}

func (s *AuthService) getPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = "p"
	}
	policies := s.service.GetPolicy(key)
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "policies": policies})
}

func (s *AuthService) addRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	var dom []string
	if req.Domain != "" {
		dom = append(dom, req.Domain)
	}
	added, err := s.service.AddRoleForUser(req.User, req.Role, dom...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !added {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "role link already exists"})
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *AuthService) deleteRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	var dom []string
	if req.Domain != "" {
		dom = append(dom, req.Domain)
	}
	removed, err := s.service.RemoveRoleForUser(req.User, req.Role, dom...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "role link not found"})
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *AuthService) getUserRolesHandler(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["userId"]
	dom := r.URL.Query().Get("domain")
	var domains []string
	if dom != "" {
		domains = append(domains, dom)
	}
	roles := s.service.GetRolesForUser(user, domains...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "roles": roles})
}

func (s *AuthService) getRoleUsersHandler(w http.ResponseWriter, r *http.Request) {
	role := mux.Vars(r)["roleId"]
	dom := r.URL.Query().Get("domain")
	var domains []string
	if dom != "" {
		domains = append(domains, dom)
	}
	users := s.service.GetUsersForRole(role, domains...)
	writeJSON(w, http.StatusOK, map[string]interface{}{"role": role, "users": users})
}

func (s *AuthService) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReloadPolicy(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// healthHandler provides a health check endpoint.
func (s *AuthService) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "authrus",
		"database": "sqlite",
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs incoming HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s %s", r.Method, r.RequestURI, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *AuthService) router() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/enforce", s.enforceHandler).Methods("POST")
	api.HandleFunc("/policies", s.addPolicyHandler).Methods("POST")
	api.HandleFunc("/policies", s.deletePolicyHandler).Methods("DELETE")
	api.HandleFunc("/policies", s.getPoliciesHandler).Methods("GET")
	api.HandleFunc("/roles", s.addRoleHandler).Methods("POST")
	api.HandleFunc("/roles", s.deleteRoleHandler).Methods("DELETE")
	api.HandleFunc("/users/{userId}/roles", s.getUserRolesHandler).Methods("GET")
	api.HandleFunc("/roles/{roleId}/users", s.getRoleUsersHandler).Methods("GET")
	api.HandleFunc("/reload", s.reloadHandler).Methods("POST")
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)
	return router
}

func main() {
	dbPath := os.Getenv("AUTHZ_DB")
	if dbPath == "" {
		dbPath = "authz.db"
	}
	cacheSize := 1024
	if v := os.Getenv("AUTHZ_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cacheSize = n
		}
	}

	service, err := NewAuthService(dbPath, cacheSize)
	if err != nil {
		log.Fatalf("Failed to initialize authorization service: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Printf("Starting authorization service on %s", addr)
	if err := http.ListenAndServe(addr, service.router()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
