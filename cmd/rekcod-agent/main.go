// Command rekcod-agent runs the per-node agent process (§1): it registers
// with the server, proxies the local engine, and serves shell/file I/O.
package main

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/rekcod/rekcod/agent/engineproxy"
	"github.com/rekcod/rekcod/agent/httpapi"
	"github.com/rekcod/rekcod/agent/register"
	"github.com/rekcod/rekcod/agent/restartloop"
	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/infrastructure/middleware"
	"github.com/rekcod/rekcod/internal/config"

	httpserver "net/http"
)

const agentVersion = "1.0.0"

func main() {
	cfg, err := config.LoadAgentConfig()
	if err != nil {
		panic(err)
	}
	if cfg.Token == "" {
		panic("REKCOD_TOKEN is required for the agent process")
	}

	logger := logging.NewFromEnv("rekcod-agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &httpapi.Server{Log: logger, Token: cfg.Token}
	router := httpapi.NewRouter(srv)

	httpSrv := &httpserver.Server{Addr: cfg.ListenAddr, Handler: router}

	host, portStr, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		host, portStr = "0.0.0.0", "6735"
	}
	port, _ := strconv.Atoi(portStr)

	selfIP := selfAdvertiseIP(host)
	buildReq := func() register.Request {
		return register.Request{
			Name:     hostnameOrDefault(),
			HostName: hostnameOrDefault(),
			IP:       selfIP,
			Port:     port,
			Token:    cfg.Token,
			Version:  agentVersion,
			Arch:     archName(),
			OS:       osName(),
			Status:   true,
		}
	}

	go register.Loop(ctx, cfg.MasterHost, cfg.Token, cfg.RegisterInterval, buildReq, logger)

	if dockerClient, err := engineproxy.LocalClient(); err != nil {
		logger.WithError(err).Warn("restartloop: failed to build local engine client, debounce loop disabled")
	} else {
		go restartloop.Run(ctx, dockerClient, logger)
	}

	gs := middleware.NewGracefulShutdown(httpSrv, cfg.RegisterInterval)
	gs.OnShutdown(cancel)
	gs.ListenForSignals()

	logger.WithFields(map[string]interface{}{"addr": cfg.ListenAddr}).Info("agent listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != httpserver.ErrServerClosed {
		logger.WithError(err).Fatal("agent http server failed")
	}

	gs.Wait()
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// selfAdvertiseIP picks the address the agent advertises to the server: the
// configured listen host when it is not a wildcard, otherwise the first
// non-loopback interface address.
func selfAdvertiseIP(listenHost string) string {
	if listenHost != "" && listenHost != "0.0.0.0" && listenHost != "::" {
		return listenHost
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		return ipNet.IP.String()
	}
	return "127.0.0.1"
}

func archName() string {
	return strings.TrimSpace(os.Getenv("REKCOD_ARCH"))
}

func osName() string {
	return strings.TrimSpace(os.Getenv("REKCOD_OS"))
}
