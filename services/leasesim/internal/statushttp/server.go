// Package statushttp serves a read-only JSON view of a lease registry.
package statushttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasesim/pkg/lease"
)

// Routes builds the status router. ready gates /readyz; gatherer backs /metrics.
func Routes(reg *lease.Registry, ready *atomic.Bool, gatherer prometheus.Gatherer) (http.Handler, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if ready == nil {
		return nil, errors.New("ready indicator is nil")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &handlers{reg: reg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "simulation not started", http.StatusServiceUnavailable)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/servers", h.listServers)
		r.Get("/servers/{name}/leases", h.listLeases)
		r.Get("/clients", h.listClients)
		r.Get("/clients/{name}", h.getClient)
	})

	return r, nil
}

type handlers struct {
	reg *lease.Registry
}

type leaseView struct {
	ID                        string  `json:"id"`
	Server                    string  `json:"server"`
	Address                   string  `json:"address"`
	SubnetMask                string  `json:"subnet_mask"`
	Gateway                   *string `json:"gateway"`
	LeaseTimeRemainingSeconds float64 `json:"lease_time_remaining_seconds"`
}

type serverView struct {
	Name             string      `json:"name"`
	OwnIP            string      `json:"own_ip"`
	Range            lease.Range `json:"range"`
	SubnetMask       string      `json:"subnet_mask"`
	LeaseTimeSeconds float64     `json:"lease_time_seconds"`
	ActiveLeases     int         `json:"active_leases"`
}

type clientView struct {
	Name               string     `json:"name"`
	CheckPeriodSeconds float64    `json:"check_period_seconds"`
	Config             *leaseView `json:"config"`
}

func newLeaseView(cfg *lease.IPConfig) *leaseView {
	if cfg == nil {
		return nil
	}
	v := &leaseView{
		ID:                        cfg.ID().String(),
		Server:                    cfg.Server(),
		Address:                   cfg.Address(),
		SubnetMask:                cfg.SubnetMask(),
		LeaseTimeRemainingSeconds: cfg.LeaseTimeRemaining().Seconds(),
	}
	if gw, ok := cfg.Gateway(); ok {
		v.Gateway = &gw
	}
	return v
}

func newClientView(c *lease.Client) clientView {
	return clientView{
		Name:               c.Name(),
		CheckPeriodSeconds: c.Period().Seconds(),
		Config:             newLeaseView(c.CurrentConfig()),
	}
}

func (h *handlers) listServers(w http.ResponseWriter, r *http.Request) {
	servers := h.reg.Servers()
	out := make([]serverView, 0, len(servers))
	for _, s := range servers {
		out = append(out, serverView{
			Name:             s.Name(),
			OwnIP:            s.OwnAddress(),
			Range:            s.Range(),
			SubnetMask:       s.SubnetMask(),
			LeaseTimeSeconds: s.LeaseTime().Seconds(),
			ActiveLeases:     len(s.Leases()),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) listLeases(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	srv, ok := h.reg.Server(name)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("server not found"))
		return
	}
	leases := srv.Leases()
	out := make([]*leaseView, 0, len(leases))
	for _, l := range leases {
		out = append(out, newLeaseView(l))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	clients := h.reg.Clients()
	out := make([]clientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, newClientView(c))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) getClient(w http.ResponseWriter, r *http.Request) {
	c, ok := h.reg.Client(chi.URLParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("client not found"))
		return
	}
	respondJSON(w, http.StatusOK, newClientView(c))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
