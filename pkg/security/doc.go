/*
Package security groups transport security, secret management, endpoint key
sealing and caller authentication.

# TLS

	tlsConfig, reloader, err := tls.ServerConfig(&cfg.Security.TLS)
	if err != nil {
		return err
	}
	if reloader != nil {
		defer reloader.Close()
	}

The certificate pair is reloaded when either file changes on disk.

# Secrets

	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	key, err := mgr.GetSecret(ctx, "catalog-sealing-key")

With the default env provider this reads EVENTGATE_SECRET_CATALOG_SEALING_KEY.

# Sealing

Upstream endpoint keys are stored sealed with nacl/secretbox:

	box, err := sealbox.New(key)
	sealed, err := box.Seal("upstream-key")

# Authentication

	authn := auth.NewMiddleware(auth.NewResolver(st, auth.Config{...}, collector))
	r.With(authn.RequireAPIKey).Post("/eventinfo", h.EventInfo)
*/
package security
