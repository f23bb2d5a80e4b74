package llm

import (
	"fmt"
	"strings"
)

// Client letters used for advisor communications. The playbook fills them
// into decisions and the advisor agent re-derives notification content from
// actual workflow state, so the wording a client sees never outruns what the
// backends confirmed.

// AccountTypeLabel renders an account type tag for client-facing text,
// e.g. "roth_ira" -> "Roth IRA".
func AccountTypeLabel(accountType string) string {
	parts := strings.Split(strings.ToLower(accountType), "_")
	for i, p := range parts {
		switch p {
		case "ira":
			parts[i] = "IRA"
		case "":
		default:
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	label := strings.TrimSpace(strings.Join(parts, " "))
	if label == "" {
		return "IRA"
	}
	return label
}

// displayName falls back to the neutral salutation used when the client
// profile carries no name.
func displayName(clientName string) string {
	if strings.TrimSpace(clientName) == "" {
		return "Client"
	}
	return clientName
}

// FormLetter is the personalized application form cover message.
func FormLetter(clientName string) string {
	return fmt.Sprintf(`Dear %s,

I hope this message finds you well. As part of your financial planning process, I need to send you an IRA application form to complete your account setup.

The form has been pre-filled with your known information to make the process as smooth as possible. Please review all sections carefully and ensure you sign on page 3.

If you have any questions or need assistance completing the form, please don't hesitate to contact me.

Best regards,
Your Financial Advisor`, displayName(clientName))
}

// AccountOpenedLetter announces a successfully opened account.
func AccountOpenedLetter(clientName, accountType, accountNumber string) string {
	label := AccountTypeLabel(accountType)
	return fmt.Sprintf(`Dear %s,

Great news! Your %s account has been successfully opened.

Account Details:
- Account Number: %s
- Account Type: %s
- Status: Active

You can now begin making contributions to your %s. Remember, you can contribute up to $7,000 for 2024 (or $8,000 if you're 50 or older).

If you have any questions about your new account or would like to discuss contribution strategies, please don't hesitate to reach out.

Congratulations on taking this important step toward your retirement goals!

Best regards,
Your Financial Advisor`, displayName(clientName), label, accountNumber, label, label)
}

// StatusUpdateLetter is the in-progress wording used when no account has
// been confirmed yet.
func StatusUpdateLetter(clientName string) string {
	return fmt.Sprintf(`Dear %s,

I wanted to provide you with an update on your IRA application process. We're currently working through the final steps to get your account set up.

I'll keep you informed of any progress and will notify you as soon as your account is ready.

Thank you for your patience.

Best regards,
Your Financial Advisor`, displayName(clientName))
}
