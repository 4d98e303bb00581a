package ledger

import (
	"errors"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Ledger é o dono exclusivo das contas: nenhum outro componente guarda cópia
// mutável de saldo. Toda mutação é serializada por conta (lock fino), nunca
// por um lock global.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	initial  int64 // saldo de provisionamento de contas novas, em centavos
}

// account guarda saldo e versão; version cresce a cada mutação e serve
// de marcador de replay pro pipeline de apostas.
type account struct {
	mu      sync.Mutex
	balance int64
	version int64
}

func New(initialBalanceCents int64) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		initial:  initialBalanceCents,
	}
}

// getOrCreate provisiona a conta na primeira referência, com o saldo inicial
func (l *Ledger) getOrCreate(accountID string) *account {
	l.mu.RLock()
	acc, ok := l.accounts[accountID]
	l.mu.RUnlock()
	if ok {
		return acc
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok = l.accounts[accountID]; ok {
		return acc
	}
	acc = &account{balance: l.initial, version: 1}
	l.accounts[accountID] = acc
	return acc
}

// Balance retorna o saldo e a versão correntes da conta (criando se necessário)
func (l *Ledger) Balance(accountID string) (cents int64, version int64) {
	acc := l.getOrCreate(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, acc.version
}

// Debit subtrai amount do saldo da conta. Falha com ErrInsufficientFunds se o
// saldo for menor que amount; a conta nunca fica negativa. Retorna o saldo
// pós-operação pra que o chamador faça broadcast do valor autoritativo.
func (l *Ledger) Debit(accountID string, amount int64) (newBalance int64, version int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	acc := l.getOrCreate(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.balance < amount {
		return acc.balance, acc.version, ErrInsufficientFunds
	}
	acc.balance -= amount
	acc.version++
	return acc.balance, acc.version, nil
}

// Credit soma amount ao saldo. Nunca falha pra amount >= 0; amount zero é
// aceito como no-op contábil (mantém a semântica de estorno sempre aplicável).
func (l *Ledger) Credit(accountID string, amount int64) (newBalance int64, version int64, err error) {
	if amount < 0 {
		return 0, 0, ErrInvalidAmount
	}
	acc := l.getOrCreate(accountID)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	acc.balance += amount
	acc.version++
	return acc.balance, acc.version, nil
}
