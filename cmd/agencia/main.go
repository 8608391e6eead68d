// Cliente de agência: envia as apostas do CSV da agência e imprime os ganhadores recebidos.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marcelojr/loteria-agencias/internal/app/agencia"
	"github.com/marcelojr/loteria-agencias/internal/domain"
	"github.com/marcelojr/loteria-agencias/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "agencia",
		Short: "Cliente de agência da loteria",
		Long: `Envia as apostas de uma agência para o servidor de coordenação e
aguarda o sorteio, que só acontece quando todas as agências terminaram.`,
	}
	rootCmd.AddCommand(enviarCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func enviarCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CLI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "enviar",
		Short: "Envia as apostas e espera os ganhadores",
		Long: `Lê agency-<id>.csv (ou o arquivo indicado), divide em lotes e envia ao servidor.

Cada flag também pode vir do ambiente com prefixo CLI_ (CLI_ID, CLI_SERVIDOR, ...).

Examples:
  agencia enviar --id 1 --servidor localhost:12345
  agencia enviar --id 2 --batch 50 --arquivo /data/agency-2.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetLevel(logger.ParseLevel(v.GetString("log-level")))

			id := v.GetUint32("id")
			if id == 0 {
				return errors.New("informe a agencia com --id ou CLI_ID")
			}
			arquivo := v.GetString("arquivo")
			if arquivo == "" {
				arquivo = agencia.ArquivoPadrao(domain.AgenciaID(id))
			}

			apostas, err := agencia.CarregarApostas(arquivo, domain.AgenciaID(id))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cliente := agencia.New(agencia.Config{
				ID:               domain.AgenciaID(id),
				EnderecoServidor: v.GetString("servidor"),
				BatchAmount:      v.GetInt("batch"),
				TimeoutConexao:   v.GetDuration("timeout"),
			})
			res, err := cliente.Enviar(ctx, apostas)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.New(color.FgRed).Sprintf("agencia %d: %v", id, err))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d apostas em %d lotes, %s\n",
				color.New(color.FgCyan).Sprintf("agencia %d:", id),
				res.Apostas,
				res.Lotes,
				color.New(color.FgGreen).Sprintf("%d ganhadores", len(res.Ganhadores)),
			)
			for _, doc := range res.Ganhadores {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", doc)
			}
			return nil
		},
	}

	cmd.Flags().Uint32("id", 0, "Identificador da agência")
	cmd.Flags().String("servidor", "localhost:12345", "Endereço do servidor de coordenação")
	cmd.Flags().Int("batch", 100, "Máximo de apostas por lote (o lote também respeita 8 KiB)")
	cmd.Flags().String("arquivo", "", "CSV de apostas (padrão: agency-<id>.csv)")
	cmd.Flags().Duration("timeout", 10*time.Second, "Timeout para abrir a conexão")
	cmd.Flags().String("log-level", "info", "Nível de log (debug, info, warn, error)")
	_ = v.BindPFlags(cmd.Flags())
	return cmd
}
