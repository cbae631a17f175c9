// Package shibauth implements trusted-header authentication for applications
// fronted by a Shibboleth (or similar SSO) reverse proxy.
//
// The fronting proxy performs the actual login ceremony against the identity
// provider and injects the verified username and attribute values into
// request headers. This package trusts those headers: it maps them onto local
// user fields, finds or creates the matching user record, keeps group
// memberships in sync with multi-valued group attributes, and coordinates
// session state so that application logout forces re-authentication at the
// identity provider.
//
// Trusting the header channel is a deployment precondition. The proxy must
// strip inbound copies of the trusted headers from client traffic; nothing in
// this package can detect a spoofed header.
package shibauth
