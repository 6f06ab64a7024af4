package main

// GET  /                   - product listing
// GET  /products/{type}    - products of one type
// GET  /view/{id}          - single product, counts a view
// GET  /admin              - admin listing
// POST /addproduct         - create a product (multipart, with image)
// POST /updateproduct      - partial product update
// GET  /addtocart/{id}     - add a product snapshot to the cart
// GET  /checkout           - cart view with drift flags
// GET  /buy                - atomic checkout
// POST /addreview          - review a product
// POST /register, /login   - accounts
// GET  /logout

import (
	"context"
	_ "embed"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"storefront/config"
	"storefront/handler"
	"storefront/service"
	"storefront/store"
)

//go:embed migrations.sql
var migrationSQL string

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		st, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		st, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if _, err := st.DB.ExecContext(ctx, migrationSQL); err != nil {
			st.Close()
			return nil, err
		}
		log.Println("Database migrations executed successfully")
		return st, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store %s: %v", cfg.StoreDriver, err)
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	// --- Service ---
	var svc service.ServiceInterface = service.NewService(st)
	auth := service.NewAuthService(st, cfg.JWTSecret, cfg.SessionTTL)

	// --- Handlers ---
	h := handler.NewHandler(svc, auth, handler.DiskImageStore{Dir: cfg.UploadDir}, handler.Options{
		CookieSecure: !cfg.Dev(),
		SessionTTL:   cfg.SessionTTL,
		UploadDir:    cfg.UploadDir,
		PublicDir:    cfg.PublicDir,
	})

	// --- Router ---
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server running on :%s (%s store)", cfg.Port, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
