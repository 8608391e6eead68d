// Executável do servidor de coordenação: recebe as apostas das agências, espera todas concluírem e devolve os ganhadores.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/marcelojr/loteria-agencias/internal/app/httpapi"
	"github.com/marcelojr/loteria-agencias/internal/app/ingestao"
	"github.com/marcelojr/loteria-agencias/internal/app/servidor"
	"github.com/marcelojr/loteria-agencias/internal/app/sorteio"
	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/clock"
	"github.com/marcelojr/loteria-agencias/internal/platform/config"
	"github.com/marcelojr/loteria-agencias/internal/platform/health"
	"github.com/marcelojr/loteria-agencias/internal/platform/ids"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
	"github.com/marcelojr/loteria-agencias/internal/platform/migrations"
	postgresstorage "github.com/marcelojr/loteria-agencias/internal/platform/storage/postgres"
	redisstorage "github.com/marcelojr/loteria-agencias/internal/platform/storage/redis"
)

func main() {
	// .env é opcional; variáveis já exportadas têm precedência.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	db, err := abrirBanco(ctx, cfg)
	if err != nil {
		logger.Fatal("falha ao abrir banco de apostas", "driver", cfg.StorageDriver, "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("falha ao resgatar sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(ctx, db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Sem REDIS_ADDR o servidor funciona só com o banco: sem contadores nem resultado publicado.
	var (
		redisClient *redis.Client
		contador    domain.Contador
		publicador  domain.PublicadorResultados = sorteio.PublicadorNoop{}
	)
	if cfg.RedisHabilitado() {
		redisClient, err = redisstorage.NewClient(ctx, redisstorage.Opcoes{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			// Cada sessão atualiza contadores em paralelo.
			PoolSize: cfg.AgenciasEsperadas + 4,
		})
		if err != nil {
			logger.Fatal("falha ao conectar no redis", "err", err)
		}
		defer redisClient.Close()
		contador = redisstorage.NewContador(redisClient, cfg.ContadorKeyPrefix)
		publicador = redisstorage.NewResultados(redisClient, cfg.ResultadosKeyPrefix)
	}

	apostas := postgresstorage.NewApostaRepository(db)
	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()

	pipeline := ingestao.NewPipeline(apostas, contador, clockSystem, idGen)
	coordenador := sorteio.NewCoordenador(
		cfg.AgenciasEsperadas,
		apostas,
		sorteio.NumeroVencedor(cfg.NumeroVencedor),
		publicador,
		clockSystem,
		idGen,
		cfg.SorteioTimeout,
	)
	srv := servidor.New(cfg.ServerAddress, pipeline, coordenador, idGen)

	checker := health.NewChecker(sqlDB, redisClient, health.Check{
		Nome: "listener",
		Testa: func(context.Context) error {
			if srv.Endereco() == nil {
				return errors.New("listener ainda nao aberto")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	api := httpapi.New(coordenador, apostas, contador, logger.L())
	api.Register(mux)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("api de status ouvindo", "addr", cfg.MetricsAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("servidor encerrado com erro", "err", err)
	}
	logger.Info("shutdown concluido")
}

func abrirBanco(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	if cfg.StorageDriver == config.StorageDriverPostgres {
		return postgresstorage.Open(ctx, cfg.PostgresDSN())
	}
	return postgresstorage.OpenSQLite(ctx, cfg.SQLitePath)
}
