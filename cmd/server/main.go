package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"otsopos/backend/internal/auth"
	"otsopos/backend/internal/cache"
	"otsopos/backend/internal/config"
	"otsopos/backend/internal/httpapi"
	"otsopos/backend/internal/receipt"
	"otsopos/backend/internal/service"
	"otsopos/backend/internal/session"
	"otsopos/backend/internal/store"
	"otsopos/backend/internal/store/memory"
	pgstore "otsopos/backend/internal/store/postgres"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not read .env: %v", err)
	}
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.DatabaseMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("postgres migration failed: %v", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var grants cache.GrantStore = cache.NewMemoryGrantStore(nil)
	if cfg.RedisAddr != "" {
		redisGrants := cache.NewRedisGrantStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisGrants.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), keeping grants in memory", err)
			_ = redisGrants.Close()
		} else {
			grants = redisGrants
			closers = append(closers, redisGrants.Close)
			log.Println("grant store: redis")
		}
	} else {
		log.Println("grant store: in-memory")
	}

	authMgr := auth.NewManager(auth.Config{
		Secret:        cfg.AuthSecret,
		TokenTTL:      cfg.AccessTokenTTL(),
		OwnerEmail:    cfg.OwnerEmail,
		OwnerPassword: cfg.OwnerPassword,
		OwnerPIN:      cfg.OwnerPIN,
		GrantTTL:      cfg.GrantTTL(),
	}, repo, repo, grants)

	svc := service.New(repo, service.Options{
		Location:           cfg.Location(),
		StoreName:          cfg.StoreName,
		AllowNegativeStock: cfg.AllowNegativeStock,
		Printer:            receipt.LogPrinter{Width: cfg.ReceiptWidth},
	})

	sessions := session.NewManager(nil)
	gin.SetMode(gin.ReleaseMode)
	api := httpapi.New(svc, authMgr, sessions, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		ReceiptWidth:  cfg.ReceiptWidth,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Sessions outlive their token only until the next sweep.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return
			case now := <-ticker.C:
				if n := sessions.Prune(now.Add(-cfg.AccessTokenTTL())); n > 0 {
					log.Printf("pruned %d expired sessions", n)
				}
			}
		}
	}()

	go func() {
		log.Printf("%s POS backend listening on %s", cfg.StoreName, cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(sweepDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.OwnerPIN) < 6 {
		return fmt.Errorf("OWNER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.OwnerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("OWNER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.OwnerPIN); err != nil {
		return fmt.Errorf("OWNER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
		"159753": true, "147258": true, "012345": true, "543210": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
