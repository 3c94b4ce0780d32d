/**
 * Control Plane HTTP Admin Surface.
 *
 * Serves alert list + pagination, 24h severity
 * histogram, rule CRUD, runtime config get/update, traffic/top-talker
 * stats, plus /metrics and /healthz. Route registration and JSON
 * response helpers follow grimm-is-flywall's
 * internal/api/ebpf_stats_handlers.go convention
 * (RegisterRoutes(router *mux.Router), a small respond* helper),
 * generalized from its eBPF stats surface to this admin surface.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package control

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kleaSCM/sentryd/internal/config"
	"github.com/kleaSCM/sentryd/internal/enricher"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/rules"
	"github.com/kleaSCM/sentryd/internal/storage"
	"github.com/kleaSCM/sentryd/pkg/api"
)

// Server bundles the dependencies the HTTP admin surface reads and
// mutates: the control-plane hooks (rule CRUD, reload, quiesce), the
// storage sink (alerts, traffic stats), and the config snapshot (served
// by GET /api/config and replaced wholesale, in memory only, by POST
// /api/config; the running pipeline does not read it). GeoIP and
// the reverse DNS resolver are both optional: either may be nil to
// leave top-talker rows unenriched (e.g. no GeoLite2 database
// configured).
type Server struct {
	Hooks    *Hooks
	Sink     storage.Sink
	Registry *prometheus.Registry
	GeoIP    *enricher.GeoIPService
	DNS      *enricher.DNSResolver

	cfg Config
}

// Config is the full runtime config, which the HTTP surface reports
// and accepts replacements for.
type Config = config.Config

// NewServer builds a Server over the given dependencies. cfg is the
// initial snapshot returned by GET /api/config. geo and dns may be nil.
func NewServer(hooks *Hooks, sink storage.Sink, registry *prometheus.Registry, cfg Config, geo *enricher.GeoIPService, dns *enricher.DNSResolver) *Server {
	return &Server{Hooks: hooks, Sink: sink, Registry: registry, cfg: cfg, GeoIP: geo, DNS: dns}
}

// RegisterRoutes wires every admin endpoint onto router, following the
// pack's RegisterRoutes(router *mux.Router) convention.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.HandleFunc("/api/alerts", s.handleListAlerts).Methods(http.MethodGet)
	router.HandleFunc("/api/alerts/stats", s.handleAlertStats).Methods(http.MethodGet)

	router.HandleFunc("/api/rules", s.handleListRules).Methods(http.MethodGet)
	router.HandleFunc("/api/rules", s.handleAddRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{name}/enable", s.handleEnableRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{name}/disable", s.handleDisableRule).Methods(http.MethodPost)
	router.HandleFunc("/api/rules/{name}", s.handleRemoveRule).Methods(http.MethodDelete)
	router.HandleFunc("/api/rules/reload", s.handleReloadRules).Methods(http.MethodPost)

	router.HandleFunc("/api/config", s.handleGetConfig).Methods(http.MethodGet)
	router.HandleFunc("/api/config", s.handlePostConfig).Methods(http.MethodPost)

	router.HandleFunc("/api/stats/traffic", s.handleTrafficStats).Methods(http.MethodGet)
	router.HandleFunc("/api/stats/top-ips", s.handleTopIPs).Methods(http.MethodGet)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	alerts, err := s.Sink.ListAlerts(limit, offset)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	resp := api.AlertListResponse{Total: len(alerts), Alerts: make([]api.AlertDTO, 0, len(alerts))}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, alertToDTO(a))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour).Unix()
	hist, err := s.Sink.SeverityHistogram(since)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.SeverityHistogramResponse{Stats: hist})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleList := s.Hooks.ListRules()
	resp := api.RuleListResponse{Rules: make([]api.RuleDTO, 0, len(ruleList))}
	for _, rl := range ruleList {
		resp.Rules = append(resp.Rules, ruleToDTO(rl))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var dto api.RuleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	rule, err := dtoToRule(dto)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	rule.Custom = true
	if err := s.Hooks.AddRule(rule); err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, api.OKResponse{OK: true})
}

func (s *Server) handleEnableRule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ok, err := s.Hooks.EnableRule(name)
	s.respondMutation(w, ok, err)
}

func (s *Server) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ok, err := s.Hooks.DisableRule(name)
	s.respondMutation(w, ok, err)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ok, err := s.Hooks.RemoveRule(name)
	s.respondMutation(w, ok, err)
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := s.Hooks.ReloadRules(); err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) respondMutation(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	if !ok {
		respondWithError(w, http.StatusNotFound, errNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var patch Config
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	s.cfg = patch
	respondWithJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) handleTrafficStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	talkers, err := s.Sink.TopTalkers(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s.talkersToResponse(talkers))
}

func (s *Server) handleTopIPs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	talkers, err := s.Sink.TopTalkers(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	respondWithJSON(w, http.StatusOK, s.talkersToResponse(talkers))
}

// talkersToResponse converts raw TopTalkers rows to wire DTOs,
// opportunistically attaching GeoIP and reverse-DNS hostname
// enrichment when the server has those
// services configured. Enrichment never fails the request: a missing
// or erroring lookup just leaves the corresponding field blank.
func (s *Server) talkersToResponse(talkers []storage.TalkerStat) api.TopTalkersResponse {
	resp := api.TopTalkersResponse{Talkers: make([]api.TalkerDTO, 0, len(talkers))}
	for _, t := range talkers {
		dto := api.TalkerDTO{
			IP:           t.IP,
			BytesTotal:   t.BytesTotal,
			PacketsTotal: t.PacketsTotal,
		}
		if s.GeoIP != nil {
			if geo, err := s.GeoIP.Lookup(t.IP); err == nil && geo != nil {
				dto.Country = geo.Country
				dto.Org = geo.Org
			}
		}
		if s.DNS != nil {
			dto.Hostname = s.DNS.LookupIP(t.IP)
		}
		resp.Talkers = append(resp.Talkers, dto)
	}
	return resp
}

func alertToDTO(a *models.Alert) api.AlertDTO {
	return api.AlertDTO{
		ID:         a.ID,
		Timestamp:  a.Timestamp,
		Severity:   string(a.Severity),
		SrcIP:      a.SrcIP,
		DstIP:      a.DstIP,
		SrcPort:    a.SrcPort,
		DstPort:    a.DstPort,
		Protocol:   string(a.Protocol),
		Kind:       string(a.Kind),
		RuleName:   a.RuleName,
		Confidence: a.Confidence,
	}
}

func ruleToDTO(rl models.Rule) api.RuleDTO {
	conds := make([]api.ConditionDTO, 0, len(rl.Conditions))
	for _, c := range rl.Conditions {
		conds = append(conds, api.ConditionDTO{
			Feature:  c.Feature,
			Operator: string(c.Operator),
			Operand:  rules.OperandToRaw(c.Operand),
		})
	}
	return api.RuleDTO{
		Name:       rl.Name,
		Conditions: conds,
		Severity:   string(rl.Severity),
		Enabled:    rl.Enabled,
		Custom:     rl.Custom,
	}
}

func dtoToRule(dto api.RuleDTO) (models.Rule, error) {
	conds := make([]models.Condition, 0, len(dto.Conditions))
	for _, c := range dto.Conditions {
		operand, err := rules.ParseOperand(models.Operator(c.Operator), c.Operand)
		if err != nil {
			return models.Rule{}, err
		}
		conds = append(conds, models.Condition{
			Feature:  c.Feature,
			Operator: models.Operator(c.Operator),
			Operand:  operand,
		})
	}
	severity := models.Severity(dto.Severity)
	if severity == "" {
		severity = models.SeverityMedium
	}
	return models.Rule{
		Name:       dto.Name,
		Conditions: conds,
		Severity:   severity,
		Enabled:    true,
	}, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, err error) {
	respondWithJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

var errNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }
