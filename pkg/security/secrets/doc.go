// Package secrets resolves named secrets, such as the catalog sealing key,
// from an ordered list of providers.
//
// Two providers are available:
//
//   - EnvProvider reads EVENTGATE_SECRET_<NAME> style environment variables.
//   - FileProvider reads one file per secret from a directory, the layout
//     used by Kubernetes secret mounts, and optionally watches the directory
//     so rotated files are picked up without a restart.
//
// A Manager tries providers in order and caches resolved values for a TTL:
//
//	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
//	key, err := mgr.GetSecret(ctx, "catalog-sealing-key")
//
// Configuration strings may embed ${secret:name} references, which
// ResolveReferences expands.
package secrets
