// Copyright 2024-2025 The chatmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"errors"
	"time"

	"github.com/alwitt/chatmq/common"
	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential no bearer credential was presented
	ErrMissingCredential = errors.New("no credential presented")
	// ErrInvalidCredential the credential is malformed or its signature is bad
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential the credential has expired
	ErrExpiredCredential = errors.New("expired credential")
	// ErrUnknownIdentity the credential references an identity which no longer exists
	ErrUnknownIdentity = errors.New("unknown identity")
)

// BearerClaims the claim set carried by a chatmq bearer token
type BearerClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// JWTManager mints and verifies bearer tokens
type JWTManager interface {
	// Mint generate a signed bearer token for an identity
	Mint(userID, name string) (string, error)
	// Verify parse and validate a bearer token, returning its claims
	Verify(token string) (*BearerClaims, error)
}

// jwtManagerImpl implements JWTManager
type jwtManagerImpl struct {
	common.Component
	secret   []byte
	lifetime time.Duration
	issuer   string
}

// GetJWTManager define a new JWTManager
func GetJWTManager(config common.AuthConfig) (JWTManager, error) {
	logTags := log.Fields{
		"module":    "auth",
		"component": "jwt-manager",
		"instance":  config.Issuer,
	}
	return &jwtManagerImpl{
		Component: common.Component{LogTags: logTags},
		secret:    []byte(config.SigningSecret),
		lifetime:  time.Minute * time.Duration(config.TokenLifetime),
		issuer:    config.Issuer,
	}, nil
}

// Mint generate a signed bearer token for an identity
func (m *jwtManagerImpl) Mint(userID, name string) (string, error) {
	now := time.Now()
	claims := BearerClaims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parse and validate a bearer token, returning its claims
func (m *jwtManagerImpl) Verify(token string) (*BearerClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		token, &BearerClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidCredential
			}
			return m.secret, nil
		},
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		log.WithError(err).WithFields(m.LogTags).Debug("Token verification failed")
		return nil, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*BearerClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
