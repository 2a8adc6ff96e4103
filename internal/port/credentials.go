package port

type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare returns domain.ErrInvalidCredentials when password does not match hash
	Compare(hash, password string) error
}
