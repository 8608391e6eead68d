package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loteria_sessoes_total",
		Help: "Total de sessoes de agencia encerradas, por resultado",
	}, []string{"resultado"})

	apostasIngeridasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loteria_apostas_ingeridas_total",
		Help: "Total de apostas persistidas",
	})

	lotesIngeridosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loteria_lotes_ingeridos_total",
		Help: "Total de lotes persistidos",
	})

	ingestaoDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loteria_ingestao_lote_duration_seconds",
		Help:    "Tempo para persistir um lote, incluindo a espera pelo lock de escrita",
		Buckets: prometheus.DefBuckets,
	})

	agenciasNotificadas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loteria_agencias_notificadas",
		Help: "Agencias que ja sinalizaram o fim do envio",
	})

	agenciasConectadas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loteria_agencias_conectadas",
		Help: "Agencias com conexao registrada",
	})

	sorteiosExecutadosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loteria_sorteios_executados_total",
		Help: "Total de sorteios calculados (deve ser no maximo 1 por processo)",
	})

	sorteioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loteria_sorteio_duration_seconds",
		Help:    "Tempo para ler as apostas e calcular os ganhadores",
		Buckets: prometheus.DefBuckets,
	})

	ganhadoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loteria_ganhadores_total",
		Help: "Total de apostas ganhadoras no sorteio",
	})

	consultasTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loteria_consultas_http_total",
		Help: "Consultas na API de status, por rota e resultado",
	}, []string{"rota", "status"})
)

func ObserveSessao(resultado string) {
	sessoesTotal.WithLabelValues(resultado).Inc()
}

func AddApostasIngeridas(n int) {
	apostasIngeridasTotal.Add(float64(n))
	lotesIngeridosTotal.Inc()
}

func ObserveIngestaoDuration(seconds float64) {
	ingestaoDuration.Observe(seconds)
}

func SetAgenciasNotificadas(n int) {
	agenciasNotificadas.Set(float64(n))
}

func SetAgenciasConectadas(n int) {
	agenciasConectadas.Set(float64(n))
}

func ObserveSorteio(seconds float64, ganhadores int) {
	sorteiosExecutadosTotal.Inc()
	sorteioDuration.Observe(seconds)
	ganhadoresTotal.Add(float64(ganhadores))
}

func ObserveConsulta(rota, status string) {
	consultasTotal.WithLabelValues(rota, status).Inc()
}
