// SPDX-License-Identifier: MPL-2.0

// Package instagram is a minimal client for the Instagram web API, covering
// what the indexing pipeline needs: session login, profile ID lookup, recent
// media listing and video download.
//
// The client speaks the same endpoints as the browser (ajax login with the
// CSRF cookie dance, web_profile_info, the v1 user feed) and keeps session
// cookies in a jar. The API origin is overridable, so tests run against
// httptest servers.
package instagram
