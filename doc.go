// Package relay joins an OAuth redirect to the application waiting for it.
//
// An application that starts an OAuth flow opens a WebSocket to the relay
// and authenticates with its first message:
//
//	{"api_key": "...", "state": "..."}
//
// The session is then registered under state. When the provider redirects
// the user's browser to /redirect?state=...&code=..., the relay takes the
// session out of the registry and sends it one text frame:
//
//	{"code": "...", "state": "..."}
//
// Taking a session is atomic, so a code is delivered at most once and a
// second redirect for the same state is answered with 400.
//
// In pull mode the relay stores the code instead and the application
// fetches it once from /retrieval with an X-Api-Key header.
//
// # Quick Start
//
//	store := memory.New()
//	defer store.Stop()
//
//	keys, err := security.NewKeySet([]string{os.Getenv("API_KEY")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := relay.NewServer(store, store, keys, &relay.Config{Mode: relay.ModePush}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown(context.Background())
//
//	http.ListenAndServe(":3000", relay.NewHandler(srv, logger).Routes())
//
// Sessions are kept alive with pings every 5 seconds. A session whose pings
// keep failing is released after Config.MaxMissedPings attempts.
package relay
