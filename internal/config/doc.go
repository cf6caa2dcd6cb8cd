// Package config provides configuration management for getgetleads.
//
// Configuration is read from a single YAML file. The default location is
// ~/.config/getgetleads/config.yaml; commands accept --config to point
// elsewhere. A missing file is not an error: defaults apply.
//
// # Precedence
//
// Values are resolved in this order, later sources winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. The YAML file
//  3. GETGETLEADS_* environment variables
//
// # Example
//
//	backend:
//	  url: https://api.getgetleads.com
//	providers:
//	  google:
//	    client_id: 1234.apps.googleusercontent.com
//	    redirect_uri: http://127.0.0.1:8085/oauth/callback
//	  linkedin:
//	    client_id: 86abcdef
//	    redirect_uri: http://127.0.0.1:8085/oauth/callback
//	    scopes: [openid, profile, email, w_member_social]
//	storage:
//	  backend: redis
//	  redis:
//	    addr: localhost:6379
//
// # Environment
//
//	GETGETLEADS_BACKEND_URL          backend.url
//	GETGETLEADS_BACKEND_API_KEY      backend.api_key
//	GETGETLEADS_GOOGLE_CLIENT_ID     providers.google.client_id
//	GETGETLEADS_LINKEDIN_CLIENT_ID   providers.linkedin.client_id
//	GETGETLEADS_REDIRECT_URI         redirect_uri of every configured provider
//	GETGETLEADS_STORAGE_BACKEND      storage.backend (file, memory, redis)
//	GETGETLEADS_STORAGE_DIR          storage.dir
//	GETGETLEADS_REDIS_ADDR           storage.redis.addr
//	GETGETLEADS_REDIS_PASSWORD       storage.redis.password
//	GETGETLEADS_GUEST                session.guest
//	GETGETLEADS_LISTEN               server.listen
//
// Client IDs are public. The client secret never appears in this
// configuration; it is held by the backend.
package config
