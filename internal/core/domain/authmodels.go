package domain

import "time"

// AuthModels returns the model definitions the authentication toolkit
// registers at startup: users, their sessions, linked provider accounts,
// verification tokens and API keys. Plugins register additional models on top
// of these through the same Registry.
func AuthModels() []Model {
	return []Model{
		{
			Name: "user",
			Fields: []Field{
				{Name: "id", Type: FieldString},
				{Name: "name", Type: FieldString},
				{Name: "email", Type: FieldString, Unique: true},
				{Name: "emailVerified", Type: FieldBoolean, PhysicalName: "email_verified", Default: false},
				{Name: "image", Type: FieldString},
				{Name: "createdAt", Type: FieldDate, PhysicalName: "created_at", DefaultFunc: nowValue},
				{Name: "updatedAt", Type: FieldDate, PhysicalName: "updated_at", DefaultFunc: nowValue},
			},
		},
		{
			Name: "session",
			Fields: []Field{
				{Name: "id", Type: FieldString},
				{Name: "userId", Type: FieldReference, PhysicalName: "user_id", References: "user"},
				{Name: "token", Type: FieldString, Unique: true},
				{Name: "expiresAt", Type: FieldDate, PhysicalName: "expires_at"},
				{Name: "ipAddress", Type: FieldString, PhysicalName: "ip_address"},
				{Name: "userAgent", Type: FieldString, PhysicalName: "user_agent"},
				{Name: "createdAt", Type: FieldDate, PhysicalName: "created_at", DefaultFunc: nowValue},
			},
		},
		{
			Name: "account",
			Fields: []Field{
				{Name: "id", Type: FieldString},
				{Name: "userId", Type: FieldReference, PhysicalName: "user_id", References: "user"},
				{Name: "providerId", Type: FieldString, PhysicalName: "provider_id"},
				{Name: "accountId", Type: FieldString, PhysicalName: "account_id"},
				{Name: "accessToken", Type: FieldString, PhysicalName: "access_token"},
				{Name: "refreshToken", Type: FieldString, PhysicalName: "refresh_token"},
				{Name: "scopes", Type: FieldJSON},
				{Name: "expiresAt", Type: FieldDate, PhysicalName: "expires_at"},
				{Name: "createdAt", Type: FieldDate, PhysicalName: "created_at", DefaultFunc: nowValue},
			},
		},
		{
			Name: "verification",
			Fields: []Field{
				{Name: "id", Type: FieldString},
				{Name: "identifier", Type: FieldString},
				{Name: "value", Type: FieldString},
				{Name: "expiresAt", Type: FieldDate, PhysicalName: "expires_at"},
				{Name: "createdAt", Type: FieldDate, PhysicalName: "created_at", DefaultFunc: nowValue},
			},
		},
		{
			Name: "apikey",
			Fields: []Field{
				{Name: "id", Type: FieldString},
				{Name: "userId", Type: FieldReference, PhysicalName: "user_id", References: "user"},
				{Name: "keyHash", Type: FieldString, PhysicalName: "key_hash", Unique: true},
				{Name: "enabled", Type: FieldBoolean, Default: true},
				{Name: "metadata", Type: FieldJSON},
				{Name: "expiresAt", Type: FieldDate, PhysicalName: "expires_at"},
				{Name: "createdAt", Type: FieldDate, PhysicalName: "created_at", DefaultFunc: nowValue},
			},
		},
	}
}

func nowValue() any { return time.Now() }
