package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var (
	grpcAddr      string
	healthService string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the gRPC health service",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&grpcAddr, "grpc", "localhost:50051", "gRPC server address")
	healthCmd.Flags().StringVar(&healthService, "service", "", "Service name, empty for the whole server")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: healthService})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("service not serving")
	}
	return nil
}
