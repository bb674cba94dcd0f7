package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword はパスワードをbcryptでハッシュ化する。costが範囲外の場合はDefaultCostを使う。
func hashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPasswordHash はパスワードがハッシュと一致するかを返す。
// 不一致以外のエラー（壊れたハッシュ等）はerrとして返す。
// bcryptの上限を超えるパスワードは一致しないものとして扱う。
func checkPasswordHash(hash, password string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password hash: %w", err)
	}
	return true, nil
}
