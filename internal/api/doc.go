// Package api serves the backup engine over HTTP.
//
// Every route under /api/v1 requires an X-API-Key header. Download links
// and restore websockets also accept the key as a token query parameter.
// Downloading artifacts additionally requires the backups:admin scope.
//
//	@title						PostgreSQL Backup API
//	@version					1.0
//	@description				Dumps, restores and scheduled backups of PostgreSQL databases
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package api

//go:generate swag init -g doc.go -d .,./handler,./request,./response,../model -o ./docs
