package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/collabtown/town-api/town"
)

func setCors(h http.Handler) http.Handler {
	origin := os.Getenv("ORIGIN")
	if origin == "" {
		origin = "http://localhost:8080"
		log.Printf("defaulting to origin %s", origin)
	}

	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			return
		}

		h.ServeHTTP(w, r)
	}

	return http.HandlerFunc(fn)
}

// newBacking connects to redis when it is reachable and falls back to the
// in-process backing otherwise. The server never refuses to start over a
// missing backing.
func newBacking() town.Backing {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
		log.Printf("defaulting to redis url %s", redisURL)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("invalid redis url, using in-memory backing: %v", err)
		return town.NewMemoryBacking()
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis unreachable, using in-memory backing: %v", err)
		return town.NewMemoryBacking()
	}

	log.Printf("connected to redis at %s", opts.Addr)
	return town.NewRedisBacking(rdb)
}

func main() {
	backing := newBacking()
	t := town.New(backing)
	defer t.Close()

	tokens := NewTokenManager([]byte(os.Getenv("TOKEN_SECRET")))

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = "data"
		log.Printf("defaulting to data path %s", dataPath)
	}

	router := mux.NewRouter()
	router.Handle("/health", healthController{})
	router.Handle("/events", &EventsHandler{town: t})
	router.Handle("/ws", &WebsocketHandler{town: t})

	api := &API{town: t, tokens: tokens, dataPath: dataPath}
	api.Register(router.PathPrefix("/api").Subrouter())

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
		log.Printf("defaulting to port %s", port)
	}

	log.Printf("listening on port %s", port)
	if err := http.ListenAndServe(":"+port, setCors(router)); err != nil {
		log.Fatal(err)
	}
}
