package app

import (
	"context"
	"testing"

	"github.com/0xArchitect/ludo-backend/internal/config"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceContainer_RequiresConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	cfg := config.Default()
	_, err := NewServiceContainer(ctx, cfg, logger, ModeWorker)
	assert.ErrorContains(t, err, "DATABASE_DSN")

	cfg.Database.DSN = "postgres://ludo@localhost/ludo"
	_, err = NewServiceContainer(ctx, cfg, logger, ModeWorker)
	assert.ErrorContains(t, err, "RPC_URL")

	cfg.Blockchain.RPCURL = "http://localhost:8545"
	cfg.Blockchain.PoolAddress = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	_, err = NewServiceContainer(ctx, cfg, logger, ModeServe)
	assert.ErrorContains(t, err, "PRIVATE_KEY")
}

func TestRun_RejectsWorkerContainer(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c := &ServiceContainer{Config: config.Default(), Logger: logger, mode: ModeWorker}
	require.Error(t, c.Run(context.Background()))
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(config.CORSConfig{}))
	assert.Nil(t, originChecker(config.CORSConfig{AllowedOrigins: []string{"https://a.example", "*"}}))

	check := originChecker(config.CORSConfig{AllowedOrigins: []string{" https://a.example "}})
	require.NotNil(t, check)
	assert.True(t, check("https://a.example"))
	assert.False(t, check("https://b.example"))
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []int
	c := &ServiceContainer{}
	c.closers = append(c.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })
	c.Close()
	c.Close()
	assert.Equal(t, []int{2, 1}, order)
}
