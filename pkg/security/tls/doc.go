/*
Package tls builds the server TLS configuration.

The certificate and key named in the security.tls section are loaded once at
startup and validated. A Reloader then watches both files and swaps the
served certificate when they change, so a renewed certificate is picked up
without restarting the gateway:

	tlsCfg, reloader, err := tls.ServerConfig(&cfg.Security.TLS)
	if err != nil {
		return err
	}
	if reloader != nil {
		defer reloader.Close()
	}
	srv.TLSConfig = tlsCfg

TLS 1.0 and 1.1 are never accepted; min_version selects between 1.2 and 1.3.
*/
package tls
