package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

type JwtCustomClaim struct {
	UserId    string `json:"uid"`
	Email     string `json:"email"`
	CompanyId string `json:"cid"`
	IsAdmin   bool   `json:"adm,omitempty"`
	jwt.StandardClaims
}

func (c *JwtCustomClaim) Caller() Caller {
	return Caller{UserId: c.UserId, Email: c.Email, CompanyId: c.CompanyId, IsAdmin: c.IsAdmin}
}

func jwtSecret() []byte {
	return []byte(os.Getenv("API_SECRET"))
}

func JwtGenerate(caller Caller) (string, error) {
	lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 24
	}
	secret := jwtSecret()
	if len(secret) == 0 {
		return "", fmt.Errorf("API_SECRET is required")
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		UserId:    caller.UserId,
		Email:     caller.Email,
		CompanyId: caller.CompanyId,
		IsAdmin:   caller.IsAdmin,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(lifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(secret)
}

func JwtValidate(token string) (*jwt.Token, error) {
	secret := jwtSecret()
	if len(secret) == 0 {
		return nil, fmt.Errorf("API_SECRET is required")
	}
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return secret, nil
	})
}
