package main

import (
	"fmt"
	"net/http"
)

type healthController struct {
}

func (c healthController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{\"status\":\"healthy\"}\n")
}
