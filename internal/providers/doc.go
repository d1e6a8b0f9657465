// Package providers contains the collaborator implementations a sandbox is
// assembled from: route state (router), listener and timer tracking
// (effect), shared prototype patches (dompatch), the inter-application
// event center (bus), and remote script fetching (loader).
package providers
