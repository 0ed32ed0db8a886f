package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"athena/internal/llm"
	"athena/internal/turn"
)

// ========== main ==========

func main() {
	_ = godotenv.Load()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is not set (put it in .env or the environment)")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := os.Getenv("OPENAI_BASE_URL") // normally empty; overridable for testing

	defaultLang := os.Getenv("DEFAULT_LANG")
	if defaultLang == "" {
		defaultLang = "el"
	}

	client := llm.NewClient(apiKey, model, baseURL)
	orc := turn.NewOrchestrator(client, client)

	if v := envInt("MAX_ACTIVE_DOCS"); v > 0 {
		orc.MaxActiveDocs = v
	}
	if v := envInt("UPLOAD_TIMEOUT_SECONDS"); v > 0 {
		orc.UploadTimeout = time.Duration(v) * time.Second
	}
	if v := envInt("MODEL_TIMEOUT_SECONDS"); v > 0 {
		orc.ModelTimeout = time.Duration(v) * time.Second
	}

	srv := &Server{
		orc:         orc,
		defaultLang: defaultLang,
	}

	mux := http.NewServeMux()

	// Chat endpoints
	mux.HandleFunc("/athena", srv.handleChat)
	mux.HandleFunc("/athena/ws", srv.handleChatWS)
	mux.HandleFunc("/api/health", srv.handleHealth)

	// Static widget assets
	mux.Handle("/", http.FileServer(http.Dir("web")))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Athena gateway starting on http://localhost:%s (model=%s, lang=%s, max_docs=%d)",
		port, model, defaultLang, orc.MaxActiveDocs)
	if err := http.ListenAndServe(":"+port, corsMiddleware(mux)); err != nil {
		log.Fatal(err)
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q (not a number)", name, v)
		return 0
	}
	return n
}
