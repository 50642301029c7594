package app

// Logon issues the Logon service with the dialect-
// specific body shape. sequenceNumber and userName are the C12.18/21
// logon credentials; callers iterating a password list call this once per
// candidate.
func (p *Protocol) Logon(sequenceNumber uint16, userName string) error {
	body := EncodeLogon(p.Dialect, p.Config.Identity, sequenceNumber, userName)
	_, err := p.simpleRequest(CmdLogon, body)
	if err != nil {
		return err
	}
	p.LoggedOn = true
	return nil
}

// Security issues the Security service with a single
// password candidate.
func (p *Protocol) Security(password []byte) error {
	body := EncodeSecurity(password, p.Config.MaximumPasswordLength)
	_, err := p.simpleRequest(CmdSecurity, body)
	if err != nil {
		return err
	}
	p.Secured = true
	return nil
}

// Terminate issues the Terminate service.
func (p *Protocol) Terminate() error {
	_, err := p.simpleRequest(CmdTerminate, nil)
	p.LoggedOn = false
	p.Secured = false
	p.Negotiated = NegotiatedView{}
	p.Identified = IdentifiedView{}
	return err
}

// Logoff issues the Logoff service.
func (p *Protocol) Logoff() error {
	_, err := p.simpleRequest(CmdLogoff, nil)
	p.LoggedOn = false
	p.Secured = false
	return err
}
