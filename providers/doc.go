// Package providers holds the static OAuth provider registry. A provider is
// pure data: endpoint URLs, issuer, default scopes, and provider-specific
// authorization parameters. New providers are added by registering another
// record, never by changing the flow engine.
package providers
