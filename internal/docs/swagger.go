// Package docs serves the OpenAPI description of the API at /swagger/*.
package docs

// @title Vitrine API
// @version 1.0
// @description Content backend for a marketing site: hero banner, client logos, services and admin authentication.

// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the token with the `Bearer ` prefix, e.g. "Bearer abcde12345".

// @tag.name auth
// @tag.description Registration, login and token verification

// @tag.name content
// @tag.description Hero, client logos and services sections

// @tag.name upload
// @tag.description Loose image uploads
