package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Auth   *AuthHandler
	Rooms  *RoomHandler
	Events *EventHandler
	// SessionMiddleware guards every route except the auth entry points;
	// Middleware wraps the whole router.
	SessionMiddleware func(http.Handler) http.Handler
	Middleware        []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	guard := cfg.SessionMiddleware
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	protected := func(handler http.HandlerFunc) http.Handler {
		return guard(handler)
	}

	if cfg.Auth != nil {
		mux.HandleFunc("/auth/url", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Auth.URL(w, r)
		})
		mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Login(w, r)
		})
		mux.Handle("/auth/refresh", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Refresh(w, r)
		}))
		mux.Handle("/auth/logout", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Logout(w, r)
		}))
	}

	if cfg.Rooms != nil {
		mux.Handle("/rooms", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.List(w, r)
		}))
		mux.Handle("/rooms/available", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.Available(w, r)
		}))
		mux.Handle("/rooms/highest-seat-count", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.HighestSeatCount(w, r)
		}))
		mux.Handle("/floors", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.Floors(w, r)
		}))
		mux.Handle("/people", protected(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.SearchPeople(w, r)
		}))
	}

	if cfg.Events != nil {
		mux.Handle("/events", protected(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Events.List(w, r)
			case http.MethodPost:
				cfg.Events.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		}))
		mux.Handle("/events/", protected(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/events/")
			if id == "" {
				http.NotFound(w, r)
				return
			}

			if rest, ok := strings.CutSuffix(id, "/response"); ok {
				if rest == "" {
					http.NotFound(w, r)
					return
				}
				r = r.WithContext(ContextWithEventID(r.Context(), rest))
				if r.Method != http.MethodPut {
					methodNotAllowed(w, http.MethodPut)
					return
				}
				cfg.Events.UpdateResponse(w, r)
				return
			}

			r = r.WithContext(ContextWithEventID(r.Context(), id))
			switch r.Method {
			case http.MethodPut:
				cfg.Events.Update(w, r)
			case http.MethodDelete:
				cfg.Events.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodPut, http.MethodDelete)
			}
		}))
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
