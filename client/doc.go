// Package client is the application side of the relay.
//
// An application generates a state, sends the user to the provider's
// authorization URL and waits for the relay to hand over the code:
//
//	c, err := client.New("https://relay.example.com", apiKey)
//	state := client.NewState()
//	fmt.Println(client.AuthCodeURL(oauthConfig, state))
//
//	result, err := c.Await(ctx, state)   // push mode
//	code, err := c.Poll(ctx, state, 0)   // pull mode
//
//	token, err := client.Exchange(ctx, oauthConfig, result.Code)
package client
