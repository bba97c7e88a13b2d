package mailer

import (
	"fmt"

	"github.com/opskap1/temnos/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationEmail(toEmail, toName, verifyURL, token string) error {
	logger.Info("[DEV MAIL] Verification Email",
		"to", toEmail,
		"name", toName,
		"verify_url", verifyURL,
		"token", token,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"VERIFICATION EMAIL (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s (%s)\n"+
		"Subject: Verify your Temnos account\n"+
		"\n"+
		"Verification URL: %s\n"+
		"Token: %s\n"+
		"=================================================================\n\n",
		toEmail, toName, verifyURL, token)

	return nil
}

func (d *DevMailer) SendPairingCodeEmail(toEmail, restaurantName, code string) error {
	logger.Info("[DEV MAIL] Station Pairing Code",
		"to", toEmail,
		"restaurant", restaurantName,
		"code", code,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"STATION PAIRING CODE (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Subject: Your Temnos station pairing code\n"+
		"\n"+
		"Restaurant: %s\n"+
		"Pairing Code: %s\n"+
		"=================================================================\n\n",
		toEmail, restaurantName, code)

	return nil
}
