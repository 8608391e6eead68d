// Pacote httpapi expõe a consulta somente leitura do estado do sorteio.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/marcelojr/loteria-agencias/internal/app/ingestao"
	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/metrics"
)

// API nunca dispara o sorteio; só lê o que o coordenador já decidiu.
type API struct {
	sorteio  domain.SorteioService
	apostas  domain.ApostaRepository
	contador domain.Contador
	logger   *slog.Logger
}

// New aceita contador nil quando o Redis está desabilitado.
func New(sorteio domain.SorteioService, apostas domain.ApostaRepository, contador domain.Contador, logger *slog.Logger) *API {
	return &API{sorteio: sorteio, apostas: apostas, contador: contador, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/sorteio", a.handleSorteio)
	mux.HandleFunc("/apostas", a.handleApostas)
	mux.HandleFunc("/agencias/", a.handleAgencia)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleSorteio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "metodo nao suportado", http.StatusMethodNotAllowed)
		return
	}
	metrics.ObserveConsulta("sorteio", "ok")
	responderJSON(w, http.StatusOK, a.sorteio.Estado())
}

type apostasResponse struct {
	Total      int64            `json:"total"`
	PorAgencia map[string]int64 `json:"por_agencia,omitempty"`
}

func (a *API) handleApostas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "metodo nao suportado", http.StatusMethodNotAllowed)
		return
	}

	total, err := a.apostas.Total(r.Context())
	if err != nil {
		metrics.ObserveConsulta("apostas", "error")
		a.logger.Error("erro ao contar apostas", "err", err)
		responderErro(w, err)
		return
	}
	resp := apostasResponse{Total: total}

	if a.contador != nil {
		resp.PorAgencia = a.contagemPorAgencia(r)
	}

	metrics.ObserveConsulta("apostas", "ok")
	responderJSON(w, http.StatusOK, resp)
}

// contagemPorAgencia é informativa; se o Redis falhar devolvemos só o total do banco.
func (a *API) contagemPorAgencia(r *http.Request) map[string]int64 {
	estado := a.sorteio.Estado()
	vistas := make(map[domain.AgenciaID]struct{})
	for _, ids := range [][]domain.AgenciaID{estado.AgenciasNotificadas, estado.AgenciasConectadas} {
		for _, id := range ids {
			vistas[id] = struct{}{}
		}
	}
	if len(vistas) == 0 {
		return nil
	}

	chaves := make([]string, 0, len(vistas))
	porChave := make(map[string]domain.AgenciaID, len(vistas))
	for id := range vistas {
		chave := ingestao.ChaveApostasAgencia(id)
		chaves = append(chaves, chave)
		porChave[chave] = id
	}

	valores, err := a.contador.ObterTodos(r.Context(), chaves)
	if err != nil {
		a.logger.Warn("erro ao ler contadores por agencia", "err", err)
		return nil
	}
	resultado := make(map[string]int64, len(valores))
	for chave, n := range valores {
		resultado[strconv.FormatUint(uint64(porChave[chave]), 10)] = n
	}
	return resultado
}

func (a *API) handleAgencia(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/agencias/")
	partes := strings.Split(path, "/")
	if len(partes) != 2 || partes[0] == "" || partes[1] != "ganhadores" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "metodo nao suportado", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseUint(partes[0], 10, 32)
	if err != nil {
		metrics.ObserveConsulta("ganhadores", "invalid")
		responderJSON(w, http.StatusBadRequest, map[string]string{"erro": "agencia invalida"})
		return
	}
	a.obterGanhadores(w, r, domain.AgenciaID(id))
}

type ganhadoresResponse struct {
	Agencia    domain.AgenciaID `json:"agencia"`
	Ganhadores []string         `json:"ganhadores"`
}

func (a *API) obterGanhadores(w http.ResponseWriter, r *http.Request, agencia domain.AgenciaID) {
	docs, err := a.sorteio.Ganhadores(agencia)
	if err != nil {
		metrics.ObserveConsulta("ganhadores", statusFromError(err))
		a.logger.Warn("consulta de ganhadores recusada", "agencia", agencia, "err", err)
		responderErro(w, err)
		return
	}

	metrics.ObserveConsulta("ganhadores", "ok")
	responderJSON(w, http.StatusOK, ganhadoresResponse{Agencia: agencia, Ganhadores: docs})
}

func responderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func responderErro(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrSorteioPendente):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}

	responderJSON(w, status, map[string]string{"erro": err.Error()})
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrSorteioPendente):
		return "pending"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
