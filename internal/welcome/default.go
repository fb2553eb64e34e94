package welcome

// defaultTemplate is the built-in welcome message, matching the hosted
// marketing template so inline fallback sends look the same.
func defaultTemplate() Template {
	return Template{
		Subject: "Welcome to {{.SiteName}} - Get Started Today!",
		HTML: `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Welcome to {{.SiteName}}</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; text-align: center; color: white; border-radius: 10px 10px 0 0;">
    <h1 style="margin: 0; font-size: 28px;">Welcome to {{.SiteName}}!</h1>
  </div>

  <div style="background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px;">
    <h2 style="color: #333; margin-top: 0;">Hello {{.Greeting}}!</h2>

    <p>Thank you for joining {{.SiteName}}! We're thrilled to have you as part of our growing community.</p>

    <p><strong>What's next?</strong></p>
    <ul>
      <li>Complete your profile to connect with others</li>
      <li>Explore the {{.SiteName}} ecosystem</li>
      <li>Start building your decentralized social presence</li>
    </ul>

    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.BaseURL}}/wallet"
         style="background: #667eea; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">
        Get Started Now
      </a>
    </div>

    <p>If you have any questions, feel free to reach out to our support team.</p>

    <p>Best regards,<br>
    <strong>The {{.SiteName}} Team</strong></p>

    <hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">

    <p style="font-size: 12px; color: #666;">
      This email was sent to {{.Email}} because you signed up for {{.SiteName}}.<br>
      <a href="{{.UnsubscribeURL}}" style="color: #667eea;">Unsubscribe</a> |
      <a href="{{.BaseURL}}/privacy" style="color: #667eea;">Privacy Policy</a>
    </p>
  </div>
</body>
</html>
`,
		Text: `Welcome to {{.SiteName}}, {{.Greeting}}!

Thank you for joining {{.SiteName}}! We're thrilled to have you as part of our growing community.

What's next?
- Complete your profile to connect with others
- Explore the {{.SiteName}} ecosystem
- Start building your decentralized social presence

Get started: {{.BaseURL}}/wallet

If you have any questions, feel free to reach out to our support team.

Best regards,
The {{.SiteName}} Team

---
This email was sent to {{.Email}} because you signed up for {{.SiteName}}.
Unsubscribe: {{.UnsubscribeURL}}
Privacy Policy: {{.BaseURL}}/privacy
`,
	}
}
