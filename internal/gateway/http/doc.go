// Package http provides HTTP API for the relay gateway.
//
//	@title			Relaygate API
//	@version		1.0
//	@description	Приём cargo от пиров и посылок из Интернета по PoHTTP.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@tag.name			Health
//	@tag.description	Проверка работоспособности
//
//	@tag.name			Cargo
//	@tag.description	Cargo от шлюзов-пиров
//
//	@tag.name			PoHTTP
//	@tag.description	Посылки для частных конечных точек
package http
