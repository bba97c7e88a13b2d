package mailer

type Service interface {
	SendVerificationEmail(toEmail, toName, verifyURL, token string) error
	SendPairingCodeEmail(toEmail, restaurantName, code string) error
}
