// Package providers contains the authentication provider adapters:
// an HTTP JSON adapter for ERP-style backends, an OAuth2
// client-credentials adapter for the tax API, and a local certificate
// authority verifier.
//
// All adapters map transport failures to *auth.ConnectionError and
// backend rejections to *auth.AuthenticationError so the manager's
// retry semantics hold regardless of backend.
package providers
