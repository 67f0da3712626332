package service

import (
	"net/http"
	"strings"
)

func staticJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

// switchableJSON serves body until *failing flips, then answers 500.
func switchableJSON(body string, failing *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if *failing {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

// dynamicJSON serves whatever *body holds at request time.
func dynamicJSON(body *string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(*body))
	}
}

func statusError(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", status)
	}
}

func volatilityHandler(round *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := strings.TrimPrefix(r.URL.Path, "/v1/lists/")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case *round == 1 && list == "l1":
			w.Write([]byte(`[{"symbol": "ADA", "volatility": 4.0}, {"symbol": "XRP", "volatility": 3.0}]`))
		case *round == 1 && list == "l2":
			w.Write([]byte(`[{"symbol": "ADA", "volatility": 6.0}]`))
		case *round == 2 && list == "l2":
			w.Write([]byte(`[{"symbol": "ADA", "volatility": 8.0}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}
}
