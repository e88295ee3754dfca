package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"ScriptForge/sdk/go/scriptforge"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(scriptforge.Run{
				ID:      "run-demo",
				Request: "demo",
				Status:  "pending",
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/runs/run-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scriptforge.Run{
			ID:      "run-demo",
			Request: "demo",
			Status:  "succeeded",
			Result: &scriptforge.RunResult{
				FinalScript: "print('hello')",
				Completed:   true,
				Cycles:      5,
				GenesisHash: "1b4f...",
				ChainHead:   "9c2d...",
			},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := scriptforge.NewClient(srv.URL, scriptforge.WithHTTPClient(srv.Client()))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.SubmitRun(ctx, scriptforge.RunSubmission{
		Request: "Create a Python script that prints hello",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted run %s (status=%s)\n", created.ID, created.Status)

	final, err := client.WaitForRun(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("run %s finished in %d cycles, chain head %s\n", final.ID, final.Result.Cycles, final.Result.ChainHead)
	fmt.Println(final.Result.FinalScript)
}
